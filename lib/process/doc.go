// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Warden
// binaries: fatal error reporting to stderr when the structured
// logger may not be initialized yet, and process exit after an
// unrecoverable error in main(). All other raw I/O in binaries goes
// through slog (stderr) or the event surface (stdout).
package process
