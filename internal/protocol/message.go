// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package protocol decodes the agent CLI's line-oriented stream-json
// output into typed messages.
package protocol

import (
	"encoding/json"
	"time"
)

// Kind identifies the variant of a decoded message.
type Kind int

const (
	KindUnknown Kind = iota
	KindSystemInit
	KindSystemCompletion
	KindAssistant
	KindUser
	KindUserPrompt // synthesized locally, never emitted by the CLI
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindSystemInit:
		return "system.init"
	case KindSystemCompletion:
		return "system.completion"
	case KindAssistant:
		return "assistant"
	case KindUser:
		return "user"
	case KindUserPrompt:
		return "user_prompt"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// ContentBlock mirrors the Messages API content block types.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// Usage carries token accounting reported by the CLI.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	OutputTokens             int `json:"output_tokens"`
}

// TotalInput returns input tokens including cache reads and writes.
func (u Usage) TotalInput() int {
	return u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// Message is one typed unit parsed from the CLI's output stream, or
// synthesized locally for prompts the caller sends.
type Message struct {
	Kind    Kind   `json:"kind"`
	Type    string `json:"type"`              // raw discriminator from the wire
	Subtype string `json:"subtype,omitempty"` // "init", "success", etc.

	// SDKSessionID is the CLI's own session identifier. Set on
	// system/init (and echoed on result), empty otherwise.
	SDKSessionID string `json:"session_id,omitempty"`

	// Content blocks for assistant, user, and user_prompt messages.
	Content []ContentBlock `json:"content,omitempty"`
	Usage   *Usage         `json:"usage,omitempty"`

	// Init metadata (system/init only).
	Model string   `json:"model,omitempty"`
	Tools []string `json:"tools,omitempty"`

	// Result fields (result only). Exactly one result closes each
	// prompt/response cycle; the session stays alive afterwards.
	Result     string  `json:"result,omitempty"`
	IsError    bool    `json:"is_error,omitempty"`
	DurationMS int64   `json:"duration_ms,omitempty"`
	CostUSD    float64 `json:"total_cost_usd,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Raw is the original line for unknown kinds, so forward-compatible
	// consumers can still inspect what arrived.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// NewUserPrompt builds the locally-synthesized message representing a
// prompt the caller just sent. The CLI does not echo prompts back, so
// the wrapper publishes this itself at send time.
func NewUserPrompt(prompt string) Message {
	return Message{
		Kind:      KindUserPrompt,
		Type:      "user_prompt",
		Content:   []ContentBlock{{Type: "text", Text: prompt}},
		Timestamp: time.Now(),
	}
}
