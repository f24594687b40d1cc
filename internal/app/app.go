// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires configuration, the event bus, the session manager,
// and the CLI binary watcher into one runnable container.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wingedpig/lattice/internal/config"
	"github.com/wingedpig/lattice/internal/events"
	"github.com/wingedpig/lattice/internal/session"
	"github.com/wingedpig/lattice/internal/watcher"
)

// App is the main application container.
type App struct {
	mu sync.RWMutex

	configPath string
	version    string
	config     *config.Config

	eventBus       events.EventBus
	sessionManager *session.Manager
	binaryWatcher  *watcher.BinaryWatcher

	done     chan struct{}
	stopOnce sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	ConfigPath string
	Debug      bool
	Version    string
}

// New creates a new App instance.
func New(opts Options) (*App, error) {
	app := &App{
		configPath: opts.ConfigPath,
		version:    opts.Version,
		done:       make(chan struct{}),
	}

	loader := config.NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app.config = cfg

	app.eventBus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.History.MaxEvents,
		HistoryMaxAge:    config.ParseDuration(cfg.Events.History.MaxAge, time.Hour),
	})

	return app, nil
}

// Initialize sets up all components.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config

	app.sessionManager = session.NewManager(session.Options{
		Command:     cfg.CLI.Command,
		Args:        cfg.CLI.Args,
		KillTimeout: config.ParseDuration(cfg.Session.KillTimeout, 5*time.Second),
		IdleTimeout: config.ParseDuration(cfg.Session.IdleTimeout, 0),
	}, app.eventBus)

	if cfg.CLI.WatchBinary != "" {
		bw, err := watcher.NewBinaryWatcher(
			app.eventBus,
			cfg.CLI.WatchBinary,
			config.ParseDuration(cfg.Watch.Debounce, 100*time.Millisecond),
		)
		if err != nil {
			return fmt.Errorf("failed to watch CLI binary: %w", err)
		}
		app.binaryWatcher = bw
		log.Printf("app: watching CLI binary %s", bw.Path())
	}

	log.Printf("app: initialized (cli: %s)", cfg.CLI.Command)
	return nil
}

// Run initializes the app and blocks until a shutdown signal arrives.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}

	log.Printf("app: lattice %s ready", app.version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("app: received signal %v, shutting down...", sig)
	case <-ctx.Done():
		log.Printf("app: context cancelled, shutting down...")
	case <-app.done:
		log.Printf("app: shutdown requested...")
	}

	return app.Shutdown(context.Background())
}

// Shutdown tears down components in dependency order: the watcher
// first, then every session, then the event bus.
func (app *App) Shutdown(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	log.Println("app: shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if app.binaryWatcher != nil {
		app.binaryWatcher.Close()
	}

	if app.sessionManager != nil {
		if err := app.sessionManager.Shutdown(shutdownCtx); err != nil {
			log.Printf("app: error shutting down sessions: %v", err)
		}
	}

	if app.eventBus != nil {
		app.eventBus.Close()
	}

	log.Println("app: shutdown complete")
	return nil
}

// Stop requests a shutdown from another goroutine.
func (app *App) Stop() {
	app.stopOnce.Do(func() { close(app.done) })
}

// Sessions returns the session manager for the transport layer.
func (app *App) Sessions() *session.Manager {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.sessionManager
}

// Events returns the event bus for the transport layer.
func (app *App) Events() events.EventBus {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.eventBus
}

// Config returns the loaded configuration.
func (app *App) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}
