// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the event bus for lattice. The session
// manager and process wrappers publish here; the transport layer
// subscribes and forwards to clients.
package events

import (
	"context"
	"time"

	"github.com/wingedpig/lattice/internal/protocol"
)

// Event represents an immutable event record. Events for a single
// session are delivered to each subscriber in emission order.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`

	// Message is set on session.message events: the decoded protocol
	// message being republished to subscribers.
	Message *protocol.Message `json:"message,omitempty"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types     []string  // Event types to match (supports wildcards)
	SessionID string    // Filter by session
	Since     time.Time // Events after this time
	Until     time.Time // Events before this time
	Limit     int       // Maximum events to return
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Common event types
const (
	// Session lifecycle events
	EventSessionCreated    = "session.created"
	EventSessionDestroyed  = "session.destroyed"
	EventSessionTerminated = "session.terminated" // process exited, clean or crashed
	EventSessionHealth     = "session.health"

	// Session stream events
	EventSessionMessage     = "session.message"      // one decoded CLI message
	EventSessionDecodeError = "session.decode_error" // malformed output line, non-fatal

	// CLI binary events
	EventCLIBinaryChanged = "cli.binary_changed"
)
