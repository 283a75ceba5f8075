// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry reads and mutates the worker process registry, a
// JSON file listing each worker session's profile id, status, pid,
// and launch id.
//
// The registry has exactly one logical writer at a time — the
// supervisor process. Other processes read it with [Read], which
// never takes a lock and treats a missing file as an empty registry.
// Mutation goes through [Update], which applies a read-modify-write
// with an atomic replace (temporary file, fsync, rename) so readers
// never observe a partial document.
package registry
