// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/lattice/internal/events"
)

// Manager is the authoritative mapping from session ID to wrapper.
// Construct one per process; it is torn down on shutdown and no
// session state survives a restart.
type Manager struct {
	opts Options
	bus  events.EventBus

	mu       sync.Mutex
	sessions map[string]*Wrapper
	creating map[string]struct{} // IDs mid-spawn, not yet registered

	reaperStop chan struct{}
	reaperDone chan struct{}
	stopOnce   sync.Once
}

// NewManager creates a session manager. If opts.IdleTimeout is set,
// a background reaper destroys sessions idle past that duration.
func NewManager(opts Options, bus events.EventBus) *Manager {
	m := &Manager{
		opts:       opts.withDefaults(),
		bus:        bus,
		sessions:   make(map[string]*Wrapper),
		creating:   make(map[string]struct{}),
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}

	if m.opts.IdleTimeout > 0 {
		go m.reapIdle()
	} else {
		close(m.reaperDone)
	}

	return m
}

// CreateSession spawns a new CLI process for id rooted at workDir.
// Fails with ErrDuplicateSession if id is already tracked or mid-spawn;
// no process is spawned for a duplicate. The wrapper only becomes
// visible to lookups after the spawn succeeds.
func (m *Manager) CreateSession(ctx context.Context, id, workDir string) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrDuplicateSession)
	}
	if _, ok := m.creating[id]; ok {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", id, ErrDuplicateSession)
	}
	m.creating[id] = struct{}{}
	m.mu.Unlock()

	w := newWrapper(id, workDir, m.opts, m.bus)
	err := w.Initialize(ctx)

	m.mu.Lock()
	delete(m.creating, id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.sessions[id] = w
	m.mu.Unlock()

	log.Printf("session: created %s (workdir %s)", id, workDir)
	m.publish(events.Event{
		Type:      events.EventSessionCreated,
		SessionID: id,
		Payload: map[string]interface{}{
			"working_directory": workDir,
		},
	})

	return nil
}

// SendMessage dispatches a prompt into a session. Fails with
// ErrSessionNotFound for untracked IDs and ErrSessionNotHealthy when
// the wrapper is not accepting input.
func (m *Manager) SendMessage(ctx context.Context, id, prompt string) error {
	m.mu.Lock()
	w, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}

	if !w.IsHealthy() {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotHealthy)
	}

	return w.Send(ctx, prompt)
}

// DestroySession shuts down a session's process and removes it. A
// missing id is a no-op, not an error. The entry stays visible to
// lookups until shutdown completes, so a concurrent CreateSession with
// the same id observes a duplicate instead of racing a half-torn-down
// session.
func (m *Manager) DestroySession(ctx context.Context, id string) error {
	m.mu.Lock()
	w, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if err := w.Shutdown(ctx); err != nil {
		log.Printf("session: shutdown %s: %v", id, err)
	}

	// Concurrent destroys for the same id all wait on the idempotent
	// Shutdown; only the caller that removes the entry announces it.
	m.mu.Lock()
	_, tracked := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !tracked {
		return nil
	}

	log.Printf("session: destroyed %s", id)
	m.publish(events.Event{
		Type:      events.EventSessionDestroyed,
		SessionID: id,
	})

	return nil
}

// SessionState returns a live snapshot for id, or nil if untracked.
func (m *Manager) SessionState(id string) *SessionState {
	m.mu.Lock()
	w, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	state := w.Snapshot()
	return &state
}

// HasSession reports whether id is tracked and its process is alive.
// A tracked-but-dead session counts as absent.
func (m *Manager) HasSession(id string) bool {
	m.mu.Lock()
	w, ok := m.sessions[id]
	m.mu.Unlock()
	return ok && w.IsAlive()
}

// ActiveSessionIDs returns a sorted snapshot of tracked session IDs.
func (m *Manager) ActiveSessionIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Shutdown destroys every tracked session concurrently and waits for
// all of them. One session stalling past its kill timeout does not
// delay the others beyond their own timeout window.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.reaperStop) })
	<-m.reaperDone

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	log.Printf("session: shutting down %d sessions", len(ids))

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return m.DestroySession(ctx, id)
		})
	}
	return g.Wait()
}

// reapIdle periodically destroys sessions with no recent activity.
func (m *Manager) reapIdle() {
	defer close(m.reaperDone)

	interval := m.opts.IdleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.reaperStop:
			return
		case <-ticker.C:
			m.mu.Lock()
			stale := make([]string, 0)
			for id, w := range m.sessions {
				if time.Since(w.LastActivity()) > m.opts.IdleTimeout {
					stale = append(stale, id)
				}
			}
			m.mu.Unlock()

			for _, id := range stale {
				log.Printf("session: reaping idle session %s", id)
				ctx, cancel := context.WithTimeout(context.Background(), m.opts.KillTimeout*2)
				m.DestroySession(ctx, id)
				cancel()
			}
		}
	}
}

func (m *Manager) publish(event events.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(context.Background(), event); err != nil {
		log.Printf("session: publish %s: %v", event.Type, err)
	}
}
