// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading and validation.
package config

import (
	"time"
)

// Config is the root configuration structure for Lattice.
type Config struct {
	Version string        `json:"version"`
	Project ProjectConfig `json:"project"`
	CLI     CLIConfig     `json:"cli"`
	Session SessionConfig `json:"session"`
	Events  EventsConfig  `json:"events"`
	Watch   WatchConfig   `json:"watch"`
}

// ProjectConfig contains project metadata.
type ProjectConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CLIConfig configures the agent CLI every session spawns.
type CLIConfig struct {
	Command string   `json:"command"` // binary to spawn, e.g. "claude"
	Args    []string `json:"args"`    // passed to every spawned process

	// WatchBinary, if set, watches the CLI binary on disk and emits an
	// event when it is replaced (e.g. after an upgrade).
	WatchBinary string `json:"watch_binary"`
}

// SessionConfig configures session lifecycle behavior.
type SessionConfig struct {
	KillTimeout string `json:"kill_timeout"` // graceful shutdown deadline before forced kill
	IdleTimeout string `json:"idle_timeout"` // destroy sessions idle this long ("0" to disable)
}

// EventsConfig configures the event system.
type EventsConfig struct {
	History EventHistoryConfig `json:"history"`
}

// EventHistoryConfig configures event retention.
type EventHistoryConfig struct {
	MaxEvents int    `json:"max_events"`
	MaxAge    string `json:"max_age"`
}

// WatchConfig configures file watching.
type WatchConfig struct {
	Debounce string `json:"debounce"`
}

// ParseDuration parses a duration string, returning a default if empty.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
