// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"errors"
	"strings"
)

// Pattern is a compiled event type pattern. Patterns support wildcards:
//   - "session.*" matches "session.created", "session.terminated", etc.
//   - "*.terminated" matches "session.terminated", "cli.terminated", etc.
//   - "*" matches everything
type Pattern struct {
	raw string
}

// CompilePattern validates and compiles a pattern string.
func CompilePattern(pattern string) (Pattern, error) {
	if pattern == "" {
		return Pattern{}, errors.New("empty pattern")
	}
	return Pattern{raw: pattern}, nil
}

// Match checks if an event type matches the pattern.
func (p Pattern) Match(eventType string) bool {
	if p.raw == "" || eventType == "" {
		return false
	}

	if p.raw == "*" {
		return true
	}

	if p.raw == eventType {
		return true
	}

	// Wildcard at end (session.*)
	if prefix, ok := strings.CutSuffix(p.raw, ".*"); ok {
		return strings.HasPrefix(eventType, prefix+".")
	}

	// Wildcard at start (*.terminated)
	if suffix, ok := strings.CutPrefix(p.raw, "*."); ok {
		return strings.HasSuffix(eventType, "."+suffix)
	}

	return false
}

// String returns the original pattern string.
func (p Pattern) String() string {
	return p.raw
}
