// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects [Real]; tests inject [Fake] and drive time forward with
// Advance, which makes the guardian's tick loop, the channel's
// reconnect backoff, and the telemetry writer's flush loop fully
// deterministic under test.
//
// Every production function in this repository that would call
// time.Now, time.After, time.AfterFunc, time.NewTicker, or time.Sleep
// takes a Clock instead.
//
// This package has no dependencies on other Warden packages.
package clock
