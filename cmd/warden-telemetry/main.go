// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// warden-telemetry is the authoritative writer for the telemetry
// stream catalog (telemetry.json). Every process that wants a stream
// registered invokes this binary; nothing else writes the file, so
// concurrent registrations from unrelated processes serialize on the
// atomic file replace instead of corrupting each other.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/lib/config"
	"github.com/warden-foundation/warden/lib/process"
	"github.com/warden-foundation/warden/lib/version"
	"github.com/warden-foundation/warden/telemetry"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch os.Args[1] {
	case "register":
		return runRegister(os.Args[2:])
	case "show":
		return runShow(os.Args[2:])
	case "version", "--version":
		version.Print("warden-telemetry")
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: warden-telemetry <subcommand> [flags]

Subcommands:
  register    Register or refresh a stream in the catalog
  show        Print the parsed catalog
  version     Print version information

Run 'warden-telemetry <subcommand> --help' for subcommand flags.
`)
}

// telemetryDir resolves the catalog directory: an explicit --dir wins,
// otherwise the configured telemetry path.
func telemetryDir(dirFlag, configFlag string) (string, error) {
	if dirFlag != "" {
		return dirFlag, nil
	}
	var cfg *config.Config
	var err error
	if configFlag != "" {
		cfg, err = config.LoadFile(configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return "", err
	}
	return cfg.Paths.Telemetry, nil
}

func runRegister(args []string) error {
	var (
		dirFlag     string
		configFlag  string
		streamID    string
		label       string
		logPath     string
		priority    int
		categories  []string
		description string
	)

	flagSet := pflag.NewFlagSet("warden-telemetry register", pflag.ContinueOnError)
	flagSet.StringVar(&dirFlag, "dir", "", "telemetry directory (overrides config)")
	flagSet.StringVar(&configFlag, "config", "", "config file path (default $WARDEN_CONFIG)")
	flagSet.StringVar(&streamID, "stream", "", "stream identifier, lowercase snake_case (required)")
	flagSet.StringVar(&label, "label", "", "display label (required)")
	flagSet.StringVar(&logPath, "path", "", "absolute path to the stream's log file (required)")
	flagSet.IntVar(&priority, "priority", 2, "priority: 1=critical 2=important 3=informational")
	flagSet.StringArrayVar(&categories, "category", nil, "subsystem category (repeatable)")
	flagSet.StringVar(&description, "description", "", "who writes this log and what it captures (required)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if streamID == "" || label == "" || logPath == "" || description == "" {
		return fmt.Errorf("--stream, --label, --path, and --description are required")
	}
	if priority < 1 || priority > 3 {
		return fmt.Errorf("--priority must be 1, 2, or 3")
	}
	if len(categories) == 0 {
		return fmt.Errorf("at least one --category is required")
	}

	dir, err := telemetryDir(dirFlag, configFlag)
	if err != nil {
		return err
	}

	writer := telemetry.NewWriter(telemetry.WriterOptions{
		Path: filepath.Join(dir, telemetry.FileName),
	})
	writer.Apply(telemetry.Registration{
		ID:          streamID,
		Label:       label,
		Path:        logPath,
		Priority:    priority,
		Categories:  categories,
		Description: description,
	})
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("registering stream %s: %w", streamID, err)
	}
	// Silent on success: callers invoke this fire-and-forget and only
	// care about the exit code.
	return nil
}

func runShow(args []string) error {
	var (
		dirFlag    string
		configFlag string
		category   string
	)

	flagSet := pflag.NewFlagSet("warden-telemetry show", pflag.ContinueOnError)
	flagSet.StringVar(&dirFlag, "dir", "", "telemetry directory (overrides config)")
	flagSet.StringVar(&configFlag, "config", "", "config file path (default $WARDEN_CONFIG)")
	flagSet.StringVar(&category, "category", "", "only show streams in this category")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	dir, err := telemetryDir(dirFlag, configFlag)
	if err != nil {
		return err
	}

	data := telemetry.Read(dir)
	if category != "" {
		filtered := make(map[string]telemetry.StreamInfo)
		for id, info := range data.Streams {
			for _, c := range info.Categories {
				if c == category {
					filtered[id] = info
					break
				}
			}
		}
		data.Streams = filtered
	}

	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
