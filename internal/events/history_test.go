// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHistory_AddAndQuery(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxEvents: 100, MaxAge: time.Hour})
	defer h.Close()

	now := time.Now()
	h.Add(Event{ID: "1", Type: EventSessionCreated, SessionID: "s1", Timestamp: now.Add(-2 * time.Minute)})
	h.Add(Event{ID: "2", Type: EventSessionMessage, SessionID: "s1", Timestamp: now.Add(-time.Minute)})
	h.Add(Event{ID: "3", Type: EventSessionTerminated, SessionID: "s2", Timestamp: now})

	got, err := h.Query(EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Oldest first
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[2].ID)
}

func TestEventHistory_QueryBySession(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})
	defer h.Close()

	h.Add(Event{Type: EventSessionMessage, SessionID: "s1", Timestamp: time.Now()})
	h.Add(Event{Type: EventSessionMessage, SessionID: "s2", Timestamp: time.Now()})

	got, err := h.Query(EventFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionID)
}

func TestEventHistory_QueryByTimeRange(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})
	defer h.Close()

	now := time.Now()
	h.Add(Event{ID: "old", Type: EventSessionMessage, Timestamp: now.Add(-10 * time.Minute)})
	h.Add(Event{ID: "mid", Type: EventSessionMessage, Timestamp: now.Add(-5 * time.Minute)})
	h.Add(Event{ID: "new", Type: EventSessionMessage, Timestamp: now})

	got, err := h.Query(EventFilter{
		Since: now.Add(-7 * time.Minute),
		Until: now.Add(-time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mid", got[0].ID)
}

func TestEventHistory_QueryBadPattern(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{})
	defer h.Close()

	_, err := h.Query(EventFilter{Types: []string{""}})
	assert.Error(t, err)
}

func TestEventHistory_MaxEvents(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxEvents: 5, MaxAge: time.Hour})
	defer h.Close()

	for i := 0; i < 10; i++ {
		h.Add(Event{ID: fmt.Sprintf("%d", i), Type: EventSessionMessage, Timestamp: time.Now()})
	}

	got, err := h.Query(EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 5)
	// Oldest were dropped
	assert.Equal(t, "5", got[0].ID)
	assert.Equal(t, "9", got[4].ID)
}

func TestEventHistory_Prune(t *testing.T) {
	h := NewEventHistory(EventHistoryConfig{MaxEvents: 100, MaxAge: time.Minute})
	defer h.Close()

	h.Add(Event{ID: "stale", Type: EventSessionMessage, Timestamp: time.Now().Add(-2 * time.Minute)})
	h.Add(Event{ID: "fresh", Type: EventSessionMessage, Timestamp: time.Now()})

	h.Prune()

	got, err := h.Query(EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)
}
