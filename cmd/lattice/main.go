// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/wingedpig/lattice/internal/app"
	"github.com/wingedpig/lattice/internal/config"
)

var (
	version = "0.3"
)

func main() {
	// Check for subcommands before flag parsing
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	var (
		configPath  string
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug mode")
	flag.Parse()

	if showVersion {
		fmt.Printf("lattice %s\n", version)
		os.Exit(0)
	}

	// Find config file if not specified
	if configPath == "" {
		loader := config.NewLoader()
		found, err := loader.FindConfig()
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		configPath = found
	}

	log.Printf("Using config: %s", configPath)

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Debug:      debug,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	ctx := context.Background()
	if err := application.Run(ctx); err != nil {
		log.Fatalf("App error: %v", err)
	}
}

// runInit handles the "lattice init" command
func runInit() error {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	showHelp := initFlags.Bool("help", false, "Show help for init command")
	initFlags.BoolVar(showHelp, "h", false, "Show help for init command")
	initFlags.Parse(os.Args[2:])

	if *showHelp {
		fmt.Println(`Usage: lattice init [options]

Create a new lattice.hjson configuration file in the current directory.

This command walks you through setting up a Lattice configuration with
interactive prompts. The generated file is commented to help you
customize the available options.

Options:
  -h, -help    Show this help message

The command will ask about:
  - Project name (defaults to current directory name)
  - Agent CLI command (defaults to "claude")
  - Session kill timeout

Examples:
  lattice init              Create config with interactive prompts
  cd myproject && lattice init`)
		return nil
	}

	configFile := "lattice.hjson"

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use a different directory", configFile)
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Lattice Configuration Setup")
	fmt.Println("===========================")
	fmt.Println()
	fmt.Println("This will create a lattice.hjson configuration file in the current directory.")
	fmt.Println("Press Enter to accept defaults shown in [brackets].")
	fmt.Println()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	defaultName := filepath.Base(cwd)

	projectName := prompt(reader, "Project name", defaultName)
	cliCommand := prompt(reader, "Agent CLI command", "claude")
	killTimeout := prompt(reader, "Session kill timeout", "5s")

	configContent := generateConfig(projectName, cliCommand, killTimeout)

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Println()
	fmt.Printf("Created %s\n", configFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit lattice.hjson as needed")
	fmt.Println("  2. Run: ./lattice")
	fmt.Println()

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// escapeHJSONValue escapes a string for safe inclusion in an HJSON double-quoted value.
func escapeHJSONValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func generateConfig(projectName, cliCommand, killTimeout string) string {
	var sb strings.Builder

	sb.WriteString(`{
  // =============================================================================
  // Lattice Configuration
  // =============================================================================
  //
  // This is an HJSON file (JSON with comments and relaxed syntax).

  version: "1"

  // ---------------------------------------------------------------------------
  // Project Metadata
  // ---------------------------------------------------------------------------
  project: {
    name: "`)
	sb.WriteString(escapeHJSONValue(projectName))
	sb.WriteString(`"
  }

  // ---------------------------------------------------------------------------
  // Agent CLI
  // ---------------------------------------------------------------------------
  cli: {
    // Binary spawned for each session
    command: "`)
	sb.WriteString(escapeHJSONValue(cliCommand))
	sb.WriteString(`"

    // Arguments passed to every session's process. The defaults drive
    // the CLI in newline-delimited stream-json mode on both stdin and
    // stdout, which is what the session core expects.
    // args: ["--output-format", "stream-json", "--input-format", "stream-json", "--verbose"]

    // Watch the CLI binary and emit an event when it is replaced,
    // e.g. after an upgrade. Running sessions keep the old build.
    // watch_binary: "/usr/local/bin/claude"
  }

  // ---------------------------------------------------------------------------
  // Sessions
  // ---------------------------------------------------------------------------
  session: {
    // How long to wait for a process to exit gracefully before it is
    // force-killed. Shared by all sessions.
    kill_timeout: "`)
	sb.WriteString(escapeHJSONValue(killTimeout))
	sb.WriteString(`"

    // Destroy sessions with no activity for this long ("0" disables)
    idle_timeout: "0"
  }

  // ---------------------------------------------------------------------------
  // Events
  // ---------------------------------------------------------------------------
  events: {
    history: {
      // Bounded in-memory event retention for reconnecting clients
      max_events: 10000
      max_age: "1h"
    }
  }

  // ---------------------------------------------------------------------------
  // File Watching
  // ---------------------------------------------------------------------------
  watch: {
    // Coalesce bursts of file change events
    debounce: "100ms"
  }
}
`)

	return sb.String()
}
