// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// ErrMalformedLine is returned when a line is not a JSON object with a
// string "type" field. Decode errors are non-fatal: the caller logs or
// emits a diagnostic and keeps reading the stream.
var ErrMalformedLine = errors.New("malformed stream line")

// wireEvent is the superset shape of one stream-json line.
type wireEvent struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
	Model     string          `json:"model,omitempty"`
	Tools     []string        `json:"tools,omitempty"`
	Result    string          `json:"result,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Duration  int64           `json:"duration_ms,omitempty"`
	Cost      float64         `json:"total_cost_usd,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
}

// wireMessage is the message field of assistant and user events.
type wireMessage struct {
	Content []ContentBlock `json:"content"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// DecodeLine converts one complete output line into a Message. It is a
// pure function: buffering partial lines is the caller's job.
//
// A line that is not a JSON object, or lacks a string "type", fails
// with ErrMalformedLine. A line with an unrecognized "type" decodes to
// KindUnknown rather than failing, so new CLI message shapes never kill
// a session.
func DecodeLine(line []byte) (Message, error) {
	if !gjson.ValidBytes(line) {
		return Message{}, fmt.Errorf("%w: invalid JSON: %s", ErrMalformedLine, truncate(line, 120))
	}
	parsed := gjson.ParseBytes(line)
	if !parsed.IsObject() {
		return Message{}, fmt.Errorf("%w: not a JSON object: %s", ErrMalformedLine, truncate(line, 120))
	}
	typ := parsed.Get("type")
	if typ.Type != gjson.String || typ.Str == "" {
		return Message{}, fmt.Errorf("%w: missing type discriminator: %s", ErrMalformedLine, truncate(line, 120))
	}

	var ev wireEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}

	msg := Message{
		Type:      ev.Type,
		Subtype:   ev.Subtype,
		Timestamp: time.Now(),
	}

	switch ev.Type {
	case "system":
		switch ev.Subtype {
		case "init":
			msg.Kind = KindSystemInit
			msg.SDKSessionID = ev.SessionID
			msg.Model = ev.Model
			msg.Tools = ev.Tools
		case "completion":
			msg.Kind = KindSystemCompletion
		default:
			// Other system subtypes (status, compacting) pass through
			// as unknown so subscribers can still see them.
			msg.Kind = KindUnknown
			msg.Raw = append(json.RawMessage(nil), line...)
		}

	case "assistant":
		msg.Kind = KindAssistant
		decodeInner(ev.Message, &msg)

	case "user":
		msg.Kind = KindUser
		decodeInner(ev.Message, &msg)

	case "result":
		msg.Kind = KindResult
		msg.SDKSessionID = ev.SessionID
		msg.Result = ev.Result
		msg.IsError = ev.IsError
		msg.DurationMS = ev.Duration
		msg.CostUSD = ev.Cost
		msg.Usage = ev.Usage

	default:
		msg.Kind = KindUnknown
		msg.Raw = append(json.RawMessage(nil), line...)
	}

	return msg, nil
}

// decodeInner pulls content blocks and usage out of the nested message
// field. A malformed inner message is tolerated: the outer event already
// parsed, so the Message is delivered with whatever was recovered.
func decodeInner(raw json.RawMessage, msg *Message) {
	if raw == nil {
		return
	}
	var inner wireMessage
	if err := json.Unmarshal(raw, &inner); err != nil {
		return
	}
	msg.Content = inner.Content
	if inner.Usage != nil && inner.Usage.TotalInput()+inner.Usage.OutputTokens > 0 {
		msg.Usage = inner.Usage
	}
}

// stdinUserMessage is the JSON format for sending prompts to the CLI's stdin.
type stdinUserMessage struct {
	Type      string            `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Message   stdinMessageInner `json:"message"`
}

type stdinMessageInner struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// EncodePrompt marshals one user prompt as a newline-terminated
// stream-json input line for the CLI's stdin.
func EncodePrompt(sdkSessionID, prompt string) ([]byte, error) {
	msg := stdinUserMessage{
		Type:      "user",
		SessionID: sdkSessionID,
		Message: stdinMessageInner{
			Role:    "user",
			Content: []ContentBlock{{Type: "text", Text: prompt}},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}
	return append(data, '\n'), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
