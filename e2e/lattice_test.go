// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/lattice/internal/app"
	"github.com/wingedpig/lattice/internal/events"
	"github.com/wingedpig/lattice/internal/protocol"
)

// writeFakeCLI installs a shell script that speaks just enough
// stream-json to stand in for the real agent CLI.
func writeFakeCLI(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cli")
	script := `#!/bin/sh
echo '{"type":"system","subtype":"init","session_id":"sdk-e2e","model":"fake-model","tools":["Bash"]}'
while IFS= read -r line; do
  echo '{"type":"assistant","message":{"content":[{"type":"text","text":"reply"}],"usage":{"input_tokens":3,"output_tokens":1}}}'
  echo '{"type":"result","subtype":"success","result":"ok","session_id":"sdk-e2e"}'
done
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeAppConfig(t *testing.T, cli string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lattice.hjson")
	content := fmt.Sprintf(`{
  version: "1"
  project: { name: "e2e" }
  cli: {
    command: "%s"
    args: []
  }
  session: { kill_timeout: "2s" }
}`, cli)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	application, err := app.New(app.Options{
		ConfigPath: writeAppConfig(t, writeFakeCLI(t)),
		Version:    "test",
	})
	require.NoError(t, err)
	require.NoError(t, application.Initialize(context.Background()))
	t.Cleanup(func() { application.Shutdown(context.Background()) })
	return application
}

// TestAppStartup verifies the container wires config, bus, and manager.
func TestAppStartup(t *testing.T) {
	application := newTestApp(t)

	require.NotNil(t, application.Sessions())
	require.NotNil(t, application.Events())
	assert.Equal(t, "e2e", application.Config().Project.Name)
	assert.Equal(t, "2s", application.Config().Session.KillTimeout)
}

// TestSessionRoundTrip drives a full prompt/response cycle through the
// public surface: create, send, observe events, destroy.
func TestSessionRoundTrip(t *testing.T) {
	application := newTestApp(t)
	mgr := application.Sessions()
	bus := application.Events()

	ch := make(chan events.Event, 100)
	_, err := bus.Subscribe("session.*", func(ctx context.Context, ev events.Event) error {
		ch <- ev
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, mgr.CreateSession(context.Background(), "s1", t.TempDir()))

	waitFor(t, ch, func(ev events.Event) bool {
		return ev.Type == events.EventSessionMessage && ev.Message.Kind == protocol.KindSystemInit
	})
	require.True(t, mgr.HasSession("s1"))

	require.NoError(t, mgr.SendMessage(context.Background(), "s1", "hello"))

	// Prompt first, then the CLI's reply, then the cycle result
	waitFor(t, ch, func(ev events.Event) bool {
		return ev.Message != nil && ev.Message.Kind == protocol.KindUserPrompt
	})
	waitFor(t, ch, func(ev events.Event) bool {
		return ev.Message != nil && ev.Message.Kind == protocol.KindAssistant
	})
	waitFor(t, ch, func(ev events.Event) bool {
		return ev.Message != nil && ev.Message.Kind == protocol.KindResult
	})

	state := mgr.SessionState("s1")
	require.NotNil(t, state)
	assert.True(t, state.IsAlive)
	assert.Equal(t, "sdk-e2e", state.SDKSessionID)

	require.NoError(t, mgr.DestroySession(context.Background(), "s1"))
	assert.False(t, mgr.HasSession("s1"))
	assert.Nil(t, mgr.SessionState("s1"))
}

// TestEventHistoryReplay verifies a late subscriber can query what it missed.
func TestEventHistoryReplay(t *testing.T) {
	application := newTestApp(t)
	mgr := application.Sessions()

	require.NoError(t, mgr.CreateSession(context.Background(), "s1", t.TempDir()))
	require.Eventually(t, func() bool {
		state := mgr.SessionState("s1")
		return state != nil && state.SDKSessionID != ""
	}, 5*time.Second, 20*time.Millisecond)

	got, err := application.Events().History(events.EventFilter{
		Types:     []string{"session.*"},
		SessionID: "s1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func waitFor(t *testing.T, ch <-chan events.Event, match func(events.Event) bool) events.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timeout waiting for event")
		}
	}
}
