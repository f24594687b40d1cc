// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/lattice/internal/events"
)

func newWatcherBus(t *testing.T) (*events.MemoryEventBus, chan events.Event) {
	t.Helper()
	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})
	t.Cleanup(func() { bus.Close() })

	ch := make(chan events.Event, 10)
	_, err := bus.Subscribe(events.EventCLIBinaryChanged, func(ctx context.Context, ev events.Event) error {
		ch <- ev
		return nil
	})
	require.NoError(t, err)
	return bus, ch
}

func TestBinaryWatcher_DetectsWrite(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(binary, []byte("v1"), 0o755))

	bus, ch := newWatcherBus(t)

	w, err := NewBinaryWatcher(bus, binary, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(binary, []byte("v2"), 0o755))

	select {
	case ev := <-ch:
		assert.Equal(t, events.EventCLIBinaryChanged, ev.Type)
		assert.Equal(t, binary, ev.Payload["path"])
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for binary change event")
	}
}

func TestBinaryWatcher_DetectsReplaceByRename(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(binary, []byte("v1"), 0o755))

	bus, ch := newWatcherBus(t)

	w, err := NewBinaryWatcher(bus, binary, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	// Upgrade-style replacement: write elsewhere, rename over the target
	staging := filepath.Join(dir, "claude.new")
	require.NoError(t, os.WriteFile(staging, []byte("v2"), 0o755))
	require.NoError(t, os.Rename(staging, binary))

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for binary change event")
	}
}

func TestBinaryWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(binary, []byte("v1"), 0o755))

	bus, ch := newWatcherBus(t)

	w, err := NewBinaryWatcher(bus, binary, 200*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(binary, []byte{byte(i)}, 0o755))
		time.Sleep(10 * time.Millisecond)
	}

	// One coalesced event for the burst
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for binary change event")
	}

	select {
	case <-ch:
		t.Fatal("expected a single debounced event")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestBinaryWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(binary, []byte("v1"), 0o755))

	bus, ch := newWatcherBus(t)

	w, err := NewBinaryWatcher(bus, binary, 50*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0o644))

	select {
	case <-ch:
		t.Fatal("unexpected event for sibling file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestBinaryWatcher_Close_Idempotent(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "claude")
	require.NoError(t, os.WriteFile(binary, []byte("v1"), 0o755))

	bus, _ := newWatcherBus(t)

	w, err := NewBinaryWatcher(bus, binary, 50*time.Millisecond)
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestDebouncer_CoalescesCalls(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	defer d.Stop()

	fired := make(chan struct{}, 10)
	for i := 0; i < 5; i++ {
		d.Debounce("key", func() { fired <- struct{}{} })
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("debounced function never fired")
	}

	select {
	case <-fired:
		t.Fatal("expected one invocation")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDebouncer_IndependentKeys(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	fired := make(chan string, 10)
	d.Debounce("a", func() { fired <- "a" })
	d.Debounce("b", func() { fired <- "b" })

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case k := <-fired:
			got[k] = true
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
	assert.True(t, got["a"])
	assert.True(t, got["b"])
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	fired := make(chan struct{}, 1)
	d.Debounce("key", func() { fired <- struct{}{} })
	d.Cancel("key")

	select {
	case <-fired:
		t.Fatal("cancelled function fired")
	case <-time.After(200 * time.Millisecond):
	}
}
