// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/wingedpig/lattice/internal/events"
	"github.com/wingedpig/lattice/internal/protocol"
)

// Wrapper owns a single CLI subprocess bound to one session: its
// stdin/stdout streams, health state, and shutdown sequencing. The
// read loop decodes output lines and republishes them on the event
// bus; callers interact only through Send and the read-only predicates.
type Wrapper struct {
	id          string
	workDir     string
	opts        Options
	bus         events.EventBus
	mu          sync.Mutex
	stdinMu     sync.Mutex // serializes stdin writes
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	cancel      context.CancelFunc
	state       WrapperState
	sdkSID      string
	lastActive  time.Time
	waitDone    chan struct{}
	pendingKill bool
}

func newWrapper(id, workDir string, opts Options, bus events.EventBus) *Wrapper {
	return &Wrapper{
		id:       id,
		workDir:  workDir,
		opts:     opts,
		bus:      bus,
		state:    StateSpawning,
		waitDone: make(chan struct{}),
	}
}

// Initialize spawns the subprocess rooted at the session's working
// directory and starts the read loop. On spawn failure the wrapper
// stays in the spawning state and is never registered by the Manager.
func (w *Wrapper) Initialize(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateSpawning {
		return fmt.Errorf("session %s: already initialized", w.id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, w.opts.Command, w.opts.Args...)
	cmd.Dir = w.workDir
	cmd.Stderr = os.Stderr

	// New process group so forced kill reaches child processes too
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("session %s: stdin pipe: %w", w.id, err)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("session %s: stdout pipe: %w", w.id, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("session %s: start %s: %w", w.id, w.opts.Command, err)
	}

	w.cmd = cmd
	w.stdin = stdinPipe
	w.cancel = cancel
	w.state = StateRunning
	w.lastActive = time.Now()

	go w.readLoop(stdoutPipe, cmd)

	return nil
}

// Send writes one prompt to the process's stdin and publishes the
// locally-synthesized user-prompt message. The CLI does not echo
// prompts back, so subscribers see the prompt only through this event.
//
// Health is re-checked internally: a Send racing the process's exit
// fails with an error rather than silently dropping the prompt.
//
// The prompt event is published only after the write returns, so a
// failed write publishes nothing; a reply decoded in that narrow
// window can land on the bus ahead of the prompt event.
func (w *Wrapper) Send(ctx context.Context, prompt string) error {
	w.mu.Lock()
	if w.state != StateRunning {
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("session %s is %s: %w", w.id, state, ErrNotRunning)
	}
	stdin := w.stdin
	sid := w.sdkSID
	w.lastActive = time.Now()
	w.mu.Unlock()

	line, err := protocol.EncodePrompt(sid, prompt)
	if err != nil {
		return fmt.Errorf("session %s: %w", w.id, err)
	}

	w.stdinMu.Lock()
	_, err = stdin.Write(line)
	w.stdinMu.Unlock()
	if err != nil {
		// The pipe closes when the process exits; the terminal
		// lifecycle event is published by the read loop, the caller
		// just sees the write fail.
		return fmt.Errorf("session %s: write prompt: %w", w.id, err)
	}

	msg := protocol.NewUserPrompt(prompt)
	w.publishMessage(&msg)

	return nil
}

// readLoop decodes NDJSON lines from the process's stdout for the
// lifetime of the process. Runs in its own goroutine; it is the only
// reader of stdout and the only place the wrapper transitions to
// terminated.
func (w *Wrapper) readLoop(stdout io.Reader, cmd *exec.Cmd) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, err := protocol.DecodeLine(line)
		if err != nil {
			// Malformed output is diagnostic, never fatal: keep reading.
			log.Printf("session [%s]: decode error: %v", w.id, err)
			w.publish(events.Event{
				Type:      events.EventSessionDecodeError,
				SessionID: w.id,
				Payload: map[string]interface{}{
					"error": err.Error(),
				},
			})
			continue
		}

		w.mu.Lock()
		w.lastActive = time.Now()
		if msg.Kind == protocol.KindSystemInit && w.sdkSID == "" && msg.SDKSessionID != "" {
			w.sdkSID = msg.SDKSessionID
			log.Printf("session [%s]: sdk session %s", w.id, msg.SDKSessionID)
		}
		w.mu.Unlock()

		w.publishMessage(&msg)
	}

	if scanErr := scanner.Err(); scanErr != nil {
		// Unreadable stream, for example a line over the buffer limit.
		// No further messages can be decoded, so the process comes down
		// instead of sitting in running with a dead stream.
		log.Printf("session [%s]: stdout read failed: %v", w.id, scanErr)
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	// Process exited, clean or crashed. Wait for it, record the final
	// state, and publish the terminal event exactly once.
	err := cmd.Wait()

	w.mu.Lock()
	requested := w.state == StateShuttingDown || w.pendingKill
	w.state = StateTerminated
	w.stdin = nil
	w.cmd = nil
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	if !requested {
		log.Printf("session [%s]: process exited unexpectedly (code %d)", w.id, exitCode)
	}

	w.publish(events.Event{
		Type:      events.EventSessionTerminated,
		SessionID: w.id,
		Payload: map[string]interface{}{
			"exit_code": exitCode,
			"requested": requested,
		},
	})

	close(w.waitDone)
}

// Shutdown asks the process to exit, waits up to the kill timeout,
// then force-kills the process group. Idempotent: on an already-dead
// or already-shutting-down wrapper it resolves without error.
func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateSpawning:
		// Never started; nothing to tear down.
		w.state = StateTerminated
		w.mu.Unlock()
		return nil
	case StateTerminated:
		w.mu.Unlock()
		return nil
	case StateShuttingDown:
		w.mu.Unlock()
		<-w.waitDone
		return nil
	}

	w.state = StateShuttingDown
	cmd := w.cmd
	w.mu.Unlock()

	w.publish(events.Event{
		Type:      events.EventSessionHealth,
		SessionID: w.id,
		Payload: map[string]interface{}{
			"healthy": false,
			"state":   StateShuttingDown.String(),
		},
	})

	if cmd == nil || cmd.Process == nil {
		<-w.waitDone
		return nil
	}

	// Signal the process group (negative PID) so children die too
	pgid := cmd.Process.Pid
	syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-w.waitDone:
	case <-time.After(w.opts.KillTimeout):
		w.forceKill(pgid)
		<-w.waitDone
	case <-ctx.Done():
		w.forceKill(pgid)
		<-w.waitDone
	}

	return nil
}

func (w *Wrapper) forceKill(pgid int) {
	w.mu.Lock()
	w.pendingKill = true
	w.mu.Unlock()
	log.Printf("session [%s]: graceful exit timed out, killing", w.id)
	syscall.Kill(-pgid, syscall.SIGKILL)
}

// IsAlive reports whether the process is currently running.
func (w *Wrapper) IsAlive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateRunning || w.state == StateShuttingDown
}

// IsHealthy reports whether the process is running and accepting input.
func (w *Wrapper) IsHealthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateRunning
}

// State returns the current lifecycle state.
func (w *Wrapper) State() WrapperState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SDKSessionID returns the CLI's own session identifier, or "" until
// the init message has been seen. Set at most once per wrapper.
func (w *Wrapper) SDKSessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sdkSID
}

// LastActivity returns the time of the last message in either direction.
func (w *Wrapper) LastActivity() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}

// Snapshot returns the session's externally-visible state.
func (w *Wrapper) Snapshot() SessionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return SessionState{
		SessionID:    w.id,
		IsAlive:      w.state == StateRunning || w.state == StateShuttingDown,
		SDKSessionID: w.sdkSID,
	}
}

func (w *Wrapper) publishMessage(msg *protocol.Message) {
	w.publish(events.Event{
		Type:      events.EventSessionMessage,
		SessionID: w.id,
		Message:   msg,
	})
}

func (w *Wrapper) publish(event events.Event) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(context.Background(), event); err != nil {
		log.Printf("session [%s]: publish %s: %v", w.id, event.Type, err)
	}
}
