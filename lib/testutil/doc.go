// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers: channel receive and
// send operations with timeout safety valves, so individual tests do
// not hand-roll select-with-time.After blocks that hang the suite on
// failure.
package testutil
