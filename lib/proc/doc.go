// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package proc abstracts OS process-table introspection and
// termination behind the [Inspector] interface, so the guardian and
// its safety gate stay platform-agnostic.
//
// The Unix implementation reads /proc directly (VmRSS for memory,
// /proc/pid/exe for the executable path, /proc/net/tcp for port
// listeners) and kills with signals from golang.org/x/sys/unix. The
// Windows implementation shells out to tasklist, wmic, netstat, and
// taskkill and parses their output. The parsers for both are pure
// functions in parse.go, unit-tested on canned output regardless of
// the host platform.
//
// [FakeInspector] is the in-memory implementation tests inject.
package proc
