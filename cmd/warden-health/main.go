// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// warden-health probes the configured local endpoints once and prints
// the aggregated status as a single JSON line on stdout, for shells
// and callers that parse the output. The snapshot is also persisted
// under the state directory and registered as a telemetry stream, so
// log viewers can follow the latest health picture without running
// the binary themselves.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/health"
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
	var (
		configFlag string
		timeout    time.Duration
	)

	flagSet := pflag.NewFlagSet("warden-health", pflag.ContinueOnError)
	flagSet.StringVar(&configFlag, "config", "", "config file path (default $WARDEN_CONFIG)")
	flagSet.DurationVar(&timeout, "timeout", 2*time.Second, "per-endpoint probe timeout")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("warden-health")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	var cfg *config.Config
	var err error
	if configFlag != "" {
		cfg, err = config.LoadFile(configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// stdout carries exactly the snapshot line; everything else goes
	// to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	endpoints := make([]health.Endpoint, len(cfg.Endpoints))
	for i, endpoint := range cfg.Endpoints {
		endpoints[i] = health.Endpoint{
			Name:     endpoint.Name,
			Port:     endpoint.Port,
			Kind:     endpoint.Kind,
			Path:     endpoint.Path,
			Counters: endpoint.Counters,
		}
	}

	registrar := telemetry.NewRegistrar(telemetry.RegistrarOptions{
		Binary: filepath.Join(cfg.Paths.Bin, "warden-telemetry"),
		Logger: logger,
	})

	aggregator := health.NewAggregator(health.AggregatorOptions{
		Endpoints:    endpoints,
		ProbeTimeout: timeout,
		RegistryPath: cfg.Paths.RegistryFile(),
		SnapshotPath: filepath.Join(cfg.Paths.State, "health.json"),
		Registrar:    registrar,
		Logger:       logger,
	})

	snapshot := aggregator.Check(context.Background())

	output, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	fmt.Println(string(output))

	// Let the in-flight stream registration finish before exiting.
	registrar.Wait()
	return nil
}
