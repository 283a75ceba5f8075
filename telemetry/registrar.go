// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// defaultInvokeTimeout bounds one writer-binary invocation. The write
// itself is a small file replace; anything slower is stuck.
const defaultInvokeTimeout = 10 * time.Second

// Invoker runs the writer binary with the given arguments. Injected so
// tests can observe invocations without a real subprocess.
type Invoker func(ctx context.Context, binary string, args []string) error

// RegistrarOptions configures a Registrar.
type RegistrarOptions struct {
	// Binary is the path to the warden-telemetry executable.
	Binary string

	// Invoke runs the binary. Defaults to an exec.Command runner.
	Invoke Invoker

	// Timeout bounds each invocation. Defaults to 10s.
	Timeout time.Duration

	// Logger receives invocation failures. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// Registrar announces log streams to the catalog by invoking the
// authoritative writer binary. It never writes the catalog file
// itself, and Register never blocks the caller: the invocation runs in
// its own goroutine and failures are logged, not returned.
type Registrar struct {
	binary  string
	invoke  Invoker
	timeout time.Duration
	log     *slog.Logger

	pending sync.WaitGroup
}

// NewRegistrar returns a Registrar invoking the given writer binary.
func NewRegistrar(options RegistrarOptions) *Registrar {
	if options.Invoke == nil {
		options.Invoke = execInvoker
	}
	if options.Timeout <= 0 {
		options.Timeout = defaultInvokeTimeout
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registrar{
		binary:  options.Binary,
		invoke:  options.Invoke,
		timeout: options.Timeout,
		log:     options.Logger,
	}
}

// Register announces a stream. Fire-and-forget: the caller's goroutine
// is never blocked on the subprocess, and a missing or failing binary
// only produces a log line.
func (r *Registrar) Register(id, label, path string, priority int, categories []string, description string) {
	args := []string{
		"register",
		"--stream", id,
		"--label", label,
		"--path", path,
		"--priority", strconv.Itoa(priority),
	}
	for _, category := range categories {
		args = append(args, "--category", category)
	}
	args = append(args, "--description", description)

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.invoke(ctx, r.binary, args); err != nil {
			r.log.Warn("telemetry registration failed",
				"stream", id,
				"binary", r.binary,
				"error", err)
		}
	}()
}

// Wait blocks until every in-flight registration has finished. Used
// at shutdown and in tests; Register itself never waits.
func (r *Registrar) Wait() {
	r.pending.Wait()
}

func execInvoker(ctx context.Context, binary string, args []string) error {
	output, err := exec.CommandContext(ctx, binary, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("running %s: %w (output: %s)", binary, err, output)
	}
	return nil
}
