// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeInvoker struct {
	mu     sync.Mutex
	binary string
	args   []string
	calls  int
	err    error
	block  chan struct{}
}

func (f *fakeInvoker) invoke(ctx context.Context, binary string, args []string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binary = binary
	f.args = args
	f.calls++
	return f.err
}

func TestRegisterInvokesWriterBinary(t *testing.T) {
	invoker := &fakeInvoker{}
	registrar := NewRegistrar(RegistrarOptions{
		Binary: "/opt/warden/bin/warden-telemetry",
		Invoke: invoker.invoke,
	})

	registrar.Register("guardian-profile-1", "Guardian", "/var/log/g.log", 1,
		[]string{"guardian", "health"}, "Per-launch guardian log")
	registrar.Wait()

	if invoker.binary != "/opt/warden/bin/warden-telemetry" {
		t.Errorf("binary = %q", invoker.binary)
	}
	want := []string{
		"register",
		"--stream", "guardian-profile-1",
		"--label", "Guardian",
		"--path", "/var/log/g.log",
		"--priority", "1",
		"--category", "guardian",
		"--category", "health",
		"--description", "Per-launch guardian log",
	}
	if !reflect.DeepEqual(invoker.args, want) {
		t.Errorf("args = %q, want %q", invoker.args, want)
	}
}

func TestRegisterNeverBlocksCaller(t *testing.T) {
	invoker := &fakeInvoker{block: make(chan struct{})}
	registrar := NewRegistrar(RegistrarOptions{
		Binary: "/opt/warden/bin/warden-telemetry",
		Invoke: invoker.invoke,
	})

	start := time.Now()
	registrar.Register("s", "l", "/p", 2, []string{"c"}, "d")
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Register blocked for %v", elapsed)
	}

	close(invoker.block)
	registrar.Wait()
	if invoker.calls != 1 {
		t.Errorf("calls = %d, want 1", invoker.calls)
	}
}

func TestRegisterSwallowsInvocationFailure(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("exit status 1")}
	registrar := NewRegistrar(RegistrarOptions{
		Binary: "/opt/warden/bin/warden-telemetry",
		Invoke: invoker.invoke,
	})

	// Must not panic or surface the error anywhere.
	registrar.Register("s", "l", "/p", 2, []string{"c"}, "d")
	registrar.Wait()
	if invoker.calls != 1 {
		t.Errorf("calls = %d, want 1", invoker.calls)
	}
}

func TestRegisterMissingBinary(t *testing.T) {
	// Default exec invoker against a binary that does not exist: the
	// registration still completes without error reaching the caller.
	registrar := NewRegistrar(RegistrarOptions{
		Binary:  filepath.Join(t.TempDir(), "no-such-binary"),
		Timeout: 2 * time.Second,
	})
	registrar.Register("s", "l", "/p", 2, []string{"c"}, "d")
	registrar.Wait()
}
