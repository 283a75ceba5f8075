// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// warden-supervisor is the long-running supervisory daemon: it keeps a
// persistent event channel to the core service, runs one guardian per
// registered worker session, and relays supervisory events.
//
// Output discipline: stdout carries exactly one JSON object per line,
// the events received on the channel, for the parent process to
// consume. All logging goes to stderr as JSON records.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/warden-foundation/warden/channel"
	"github.com/warden-foundation/warden/guardian"
	"github.com/warden-foundation/warden/lib/config"
	"github.com/warden-foundation/warden/lib/proc"
	"github.com/warden-foundation/warden/lib/process"
	"github.com/warden-foundation/warden/lib/statefile"
	"github.com/warden-foundation/warden/lib/version"
	"github.com/warden-foundation/warden/telemetry"
	"github.com/warden-foundation/warden/wire"
)

// checkpointInterval is how often the runtime checkpoint is persisted.
const checkpointInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configFlag string

	flagSet := pflag.NewFlagSet("warden-supervisor", pflag.ContinueOnError)
	flagSet.StringVar(&configFlag, "config", "", "config file path (default $WARDEN_CONFIG)")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("warden-supervisor")
		return nil
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	configPath := configFlag
	if configPath == "" {
		configPath = os.Getenv("WARDEN_CONFIG")
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

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inspector := proc.New()

	// Correct stale registry entries from a previous run before any
	// guardian trusts them.
	report, err := guardian.Audit(cfg.Paths.RegistryFile(), cfg.Paths.Bin, inspector, logger)
	if err != nil {
		return fmt.Errorf("startup audit: %w", err)
	}
	logger.Info("startup audit complete",
		"total", report.TotalProfiles,
		"open", report.OpenProfiles,
		"corrected", report.CorrectedCount)

	registrar := telemetry.NewRegistrar(telemetry.RegistrarOptions{
		Binary: filepath.Join(cfg.Paths.Bin, "warden-telemetry"),
		Logger: logger,
	})

	client := channel.New(channel.Options{
		Address:           cfg.Service.Address(),
		DialTimeout:       cfg.Channel.DialTimeout.Std(),
		ReconnectMin:      cfg.Channel.ReconnectMin.Std(),
		ReconnectMax:      cfg.Channel.ReconnectMax.Std(),
		KeepaliveInterval: cfg.Channel.KeepaliveInterval.Std(),
		Capabilities:      []string{"guardian", "health", "telemetry"},
		Logger:            logger,
	})
	defer client.Close()

	if err := connectWithRetry(ctx, client, cfg, logger); err != nil {
		return err
	}

	// Recover events missed while down, then resume from the
	// checkpoint's view of the world.
	checkpoint, restored := statefile.Read(cfg.Paths.CheckpointFile())
	if restored {
		logger.Info("checkpoint restored",
			"last_event_time", checkpoint.LastEventTime,
			"service_pid", checkpoint.ServicePID)
		if err := client.PollEvents(checkpoint.LastEventTime); err != nil {
			logger.Warn("event rehydration request failed", "error", err)
		}
	}

	super := newSupervisor(cfg, client, inspector, registrar, logger)
	super.reconcile()

	go pumpEvents(ctx, client)
	go watchConfig(ctx, configPath, logger, super)
	go checkpointLoop(ctx, cfg, client, super, logger)
	go super.run(ctx)

	if err := client.Send(wire.NewEvent(wire.EventTypeDaemonReady)); err != nil {
		logger.Warn("announcing readiness", "error", err)
	}
	logger.Info("supervisor ready", "address", cfg.Service.Address())

	<-ctx.Done()

	logger.Info("shutting down")
	if err := client.Send(wire.NewEvent(wire.EventTypeDaemonShutdown)); err != nil {
		logger.Warn("announcing shutdown", "error", err)
	}
	super.stopAll()
	writeCheckpoint(cfg, client, super, logger)
	registrar.Wait()
	return nil
}

// connectWithRetry dials the event channel, doubling the delay between
// attempts from the configured minimum to the maximum. Once the first
// connection is established, the client handles later outages itself.
func connectWithRetry(ctx context.Context, client *channel.Client, cfg *config.Config, logger *slog.Logger) error {
	delay := cfg.Channel.ReconnectMin.Std()
	for {
		err := client.Connect()
		if err == nil {
			return nil
		}
		logger.Warn("event channel connect failed", "error", err, "retry_in", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if ceiling := cfg.Channel.ReconnectMax.Std(); delay > ceiling {
			delay = ceiling
		}
	}
}

// pumpEvents writes every inbound event as one JSON line on stdout.
func pumpEvents(ctx context.Context, client *channel.Client) {
	encoder := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-client.Events():
			// Encode appends the newline; one event per line.
			_ = encoder.Encode(event)
		}
	}
}

// watchConfig re-applies threshold changes without a restart. An
// unset config path (pure environment-driven startup is impossible,
// Load requires WARDEN_CONFIG) still names a file to watch.
func watchConfig(ctx context.Context, path string, logger *slog.Logger, super *supervisor) {
	if path == "" {
		return
	}
	if err := config.Watch(ctx, path, logger, super.applyConfig); err != nil {
		logger.Warn("config watch unavailable", "path", path, "error", err)
	}
}

func checkpointLoop(ctx context.Context, cfg *config.Config, client *channel.Client, super *supervisor, logger *slog.Logger) {
	ticker := time.NewTicker(checkpointInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeCheckpoint(cfg, client, super, logger)
		}
	}
}

func writeCheckpoint(cfg *config.Config, client *channel.Client, super *supervisor, logger *slog.Logger) {
	_, lastEventTime := client.LastEventTime()
	checkpoint := statefile.Checkpoint{
		LastEventTime: lastEventTime,
		LastSequence:  client.LastSequence(),
		ServicePID:    super.servicePID(),
		WrittenAt:     time.Now().UTC(),
	}
	if err := statefile.Write(cfg.Paths.CheckpointFile(), checkpoint); err != nil {
		logger.Warn("writing checkpoint", "error", err)
	}
}
