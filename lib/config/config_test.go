// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: /opt/warden
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Service.Port != 5678 {
		t.Errorf("Service.Port = %d, want default 5678", cfg.Service.Port)
	}
	if cfg.Guardian.MaxFailures != 3 {
		t.Errorf("Guardian.MaxFailures = %d, want default 3", cfg.Guardian.MaxFailures)
	}
	if got := cfg.Guardian.TickInterval.Std(); got != 10*time.Second {
		t.Errorf("Guardian.TickInterval = %v, want 10s", got)
	}
	if got := cfg.Channel.ReconnectMax.Std(); got != 60*time.Second {
		t.Errorf("Channel.ReconnectMax = %v, want 60s", got)
	}
	if cfg.Paths.Bin != "/opt/warden/bin" {
		t.Errorf("Paths.Bin = %q, want %q (WARDEN_ROOT expansion)", cfg.Paths.Bin, "/opt/warden/bin")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: /opt/warden
service:
  host: 127.0.0.1
  port: 9999
  binary: core-service
guardian:
  tick_interval: 5s
  max_failures: 5
  memory_limit_bytes: 1048576
endpoints:
  - name: Core Bridge
    port: 9999
    kind: tcp
  - name: API
    port: 48215
    kind: http
    path: /documentation
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Service.Port != 9999 {
		t.Errorf("Service.Port = %d, want 9999", cfg.Service.Port)
	}
	if got := cfg.Guardian.TickInterval.Std(); got != 5*time.Second {
		t.Errorf("TickInterval = %v, want 5s", got)
	}
	if len(cfg.Endpoints) != 2 || cfg.Endpoints[1].Path != "/documentation" {
		t.Errorf("Endpoints = %+v, want 2 entries with http path", cfg.Endpoints)
	}
	if got := cfg.Service.Address(); got != "127.0.0.1:9999" {
		t.Errorf("Address = %q, want 127.0.0.1:9999", got)
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
guardian:
  tick_interval: often
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted an unparsable duration")
	}
}

func TestValidateRejectsBadEndpointKind(t *testing.T) {
	path := writeConfig(t, `
paths:
  root: /opt/warden
endpoints:
  - name: Mystery
    port: 80
    kind: carrier-pigeon
`)
	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("LoadFile accepted an unknown endpoint kind")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error %v does not name the bad kind", err)
	}
}

func TestExpandVarsEnvironmentAndDefault(t *testing.T) {
	t.Setenv("WARDEN_TEST_VALUE", "from-env")

	got := expandVars("${WARDEN_TEST_VALUE}/x", nil)
	if got != "from-env/x" {
		t.Errorf("expandVars = %q, want %q", got, "from-env/x")
	}

	got = expandVars("${WARDEN_TEST_MISSING:-fallback}/y", nil)
	if got != "fallback/y" {
		t.Errorf("expandVars = %q, want %q", got, "fallback/y")
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("WARDEN_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without WARDEN_CONFIG")
	}
}
