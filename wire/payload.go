// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Typed views over the open data map. The wire keeps payloads as
// map[string]any for forward compatibility; supervisory code builds
// and reads them through these structs so a renamed key is a compile
// error in exactly one place.

// RegisterPayload announces the supervisor on a fresh connection.
type RegisterPayload struct {
	Version      string
	Hostname     string
	PID          int
	Capabilities []string
}

// Map converts the payload to its wire representation.
func (p RegisterPayload) Map() map[string]any {
	return map[string]any{
		"version":      p.Version,
		"hostname":     p.Hostname,
		"pid":          p.PID,
		"capabilities": p.Capabilities,
	}
}

// HeartbeatFailedPayload reports one failed probe.
type HeartbeatFailedPayload struct {
	Failures int
	Max      int
}

// Map converts the payload to its wire representation.
func (p HeartbeatFailedPayload) Map() map[string]any {
	return map[string]any{
		"failures": p.Failures,
		"max":      p.Max,
	}
}

// HeartbeatFailedFrom extracts the typed payload from a decoded
// event. Missing or mistyped keys read as zero values.
func HeartbeatFailedFrom(event Event) HeartbeatFailedPayload {
	return HeartbeatFailedPayload{
		Failures: intFrom(event.Data, "failures"),
		Max:      intFrom(event.Data, "max"),
	}
}

// RecoveryPayload carries the supervised pid across the recovery
// event sequence: the old pid on SERVICE_RECOVERY_STARTED, the new
// pid on SERVICE_RECOVERY_COMPLETE.
type RecoveryPayload struct {
	PID int
}

// StartedMap is the SERVICE_RECOVERY_STARTED representation.
func (p RecoveryPayload) StartedMap() map[string]any {
	return map[string]any{"service_pid": p.PID}
}

// CompleteMap is the SERVICE_RECOVERY_COMPLETE representation.
func (p RecoveryPayload) CompleteMap() map[string]any {
	return map[string]any{"new_service_pid": p.PID}
}

// PollEventsPayload requests redelivery of events since a timestamp.
type PollEventsPayload struct {
	Since int64
}

// Map converts the payload to its wire representation.
func (p PollEventsPayload) Map() map[string]any {
	return map[string]any{"since": p.Since}
}

// DisconnectedPayload reports a dead worker process.
type DisconnectedPayload struct {
	WorkerPID int
	Reason    string
}

// Map converts the payload to its wire representation.
func (p DisconnectedPayload) Map() map[string]any {
	return map[string]any{
		"worker_pid": p.WorkerPID,
		"reason":     p.Reason,
	}
}

// intFrom reads an integer key from a decoded payload map. JSON
// numbers decode as float64, so both forms are accepted.
func intFrom(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
