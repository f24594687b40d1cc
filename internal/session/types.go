// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session manages the lifecycle of agent CLI subprocesses.
// Each session owns exactly one long-running CLI process; the Manager
// maps caller-assigned session IDs to process wrappers and is the only
// component that creates or destroys them.
package session

import (
	"errors"
	"time"
)

// WrapperState represents the state of a session's subprocess.
type WrapperState int

const (
	StateSpawning WrapperState = iota
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s WrapperState) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (s WrapperState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// SessionState is a point-in-time snapshot of one session.
type SessionState struct {
	SessionID    string `json:"session_id"`
	IsAlive      bool   `json:"is_alive"`
	SDKSessionID string `json:"sdk_session_id,omitempty"`
}

// Sentinel errors returned by the Manager and Wrapper.
var (
	ErrDuplicateSession  = errors.New("duplicate session")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotHealthy = errors.New("session not healthy")
	ErrNotRunning        = errors.New("process not running")
)

const (
	defaultKillTimeout = 5 * time.Second
	defaultCommand     = "claude"
)

func defaultArgs() []string {
	return []string{
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}
}

// Options configures the Manager and the wrappers it creates. All
// sessions share the same CLI command and kill timeout.
type Options struct {
	// Command is the CLI binary to spawn. Defaults to "claude".
	Command string

	// Args are passed to every spawned process. Defaults to the
	// stream-json input/output flags.
	Args []string

	// KillTimeout bounds graceful shutdown: after asking a process to
	// exit, wait this long before force-killing it. Defaults to 5s.
	KillTimeout time.Duration

	// IdleTimeout destroys sessions with no activity for this long.
	// Zero disables the idle reaper.
	IdleTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Command == "" {
		o.Command = defaultCommand
	}
	if o.Args == nil {
		o.Args = defaultArgs()
	}
	if o.KillTimeout <= 0 {
		o.KillTimeout = defaultKillTimeout
	}
	return o
}
