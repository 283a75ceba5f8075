// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry maintains the central stream catalog: a single
// JSON file mapping stream ids to the log files that back them.
//
// The file has exactly one writer, the warden-telemetry binary, which
// uses Writer to mutate it. Every other process goes through
// Registrar, which shells out to that binary asynchronously and never
// touches the file itself. Read is the read-only parse used by
// consumers; it never fails, returning empty data for a missing or
// corrupt file.
package telemetry
