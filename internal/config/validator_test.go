// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		Version: "1",
		Project: ProjectConfig{Name: "test"},
	}
	applyDefaults(cfg)
	return cfg
}

func TestValidator_Valid(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(validConfig()))
}

func TestValidator_MissingVersion(t *testing.T) {
	cfg := validConfig()
	cfg.Version = ""

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version: is required")
}

func TestValidator_MissingProjectName(t *testing.T) {
	cfg := validConfig()
	cfg.Project.Name = ""

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project.name: is required")
}

func TestValidator_MissingCLICommand(t *testing.T) {
	cfg := validConfig()
	cfg.CLI.Command = ""

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cli.command: is required")
}

func TestValidator_BadDurations(t *testing.T) {
	tests := []struct {
		name  string
		field string
		set   func(*Config)
	}{
		{"kill timeout", "session.kill_timeout", func(c *Config) { c.Session.KillTimeout = "five seconds" }},
		{"idle timeout", "session.idle_timeout", func(c *Config) { c.Session.IdleTimeout = "later" }},
		{"history max age", "events.history.max_age", func(c *Config) { c.Events.History.MaxAge = "1 hour" }},
		{"watch debounce", "watch.debounce", func(c *Config) { c.Watch.Debounce = "-" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.set(cfg)

			err := NewValidator().Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidator_NegativeDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Session.KillTimeout = "-5s"

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")
}

func TestValidator_NegativeMaxEvents(t *testing.T) {
	cfg := validConfig()
	cfg.Events.History.MaxEvents = -1

	err := NewValidator().Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.history.max_events")
}

func TestValidator_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Version = ""
	cfg.Project.Name = ""
	cfg.CLI.Command = ""

	err := NewValidator().Validate(cfg)
	require.Error(t, err)

	verr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Len(t, verr.Errors, 3)
}
