// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "time"

// Event type constants for the supervisory protocol. The strings are
// protocol constants shared with the core service — changing them
// breaks wire compatibility.
const (
	// EventTypeRegister announces a supervisor to the core service.
	// Sent once per connection, immediately after dialing. The data
	// map carries version, hostname, pid, and a capability list.
	EventTypeRegister = "REGISTER"

	// EventTypeRegisterLegacy is the registration type emitted by
	// pre-1.0 supervisors. Accepted on receive, never sent.
	EventTypeRegisterLegacy = "REGISTER_SENTINEL"

	// EventTypeRegisterAck is the core service's reply to a
	// registration.
	EventTypeRegisterAck = "REGISTER_ACK"

	// EventTypePing is the keepalive on the persistent channel and
	// the request type of the one-shot health probe.
	EventTypePing = "PING"

	// EventTypePong is the core service's reply to a PING.
	EventTypePong = "PONG"

	// EventTypePollEvents requests redelivery of events emitted since
	// the timestamp in data["since"]. Sent after reconnecting to
	// recover events lost while disconnected.
	EventTypePollEvents = "POLL_EVENTS"

	// EventTypeHeartbeatFailed reports one failed health probe. The
	// data map carries the consecutive failure count and the
	// threshold.
	EventTypeHeartbeatFailed = "HEARTBEAT_FAILED"

	// EventTypeHeartbeatRecovered reports a successful probe after
	// one or more failures.
	EventTypeHeartbeatRecovered = "HEARTBEAT_RECOVERED"

	// EventTypeExtensionError reports that the failure threshold was
	// crossed and recovery is about to run.
	EventTypeExtensionError = "EXTENSION_ERROR"

	// EventTypeResourceAnomaly reports a supervised process over its
	// memory ceiling or missing from the process table.
	EventTypeResourceAnomaly = "RESOURCE_ANOMALY"

	// EventTypeRecoveryStarted marks the beginning of a core service
	// recovery (terminate + relaunch).
	EventTypeRecoveryStarted = "SERVICE_RECOVERY_STARTED"

	// EventTypeRecoveryComplete marks a successful relaunch. The data
	// map carries the new pid.
	EventTypeRecoveryComplete = "SERVICE_RECOVERY_COMPLETE"

	// EventTypeRecoveryFailed marks a failed relaunch.
	EventTypeRecoveryFailed = "SERVICE_RECOVERY_FAILED"

	// EventTypeProfileDisconnected reports that a worker process died
	// and its session was cleaned up.
	EventTypeProfileDisconnected = "PROFILE_DISCONNECTED"

	// EventTypeDaemonReady announces that the supervisor finished
	// startup: channel connected, audit done, guardians running.
	EventTypeDaemonReady = "DAEMON_READY"

	// EventTypeDaemonShutdown announces an orderly supervisor exit.
	EventTypeDaemonShutdown = "DAEMON_SHUTDOWN"
)

// Event is the envelope for every supervisory message. Fields with
// omitempty are optional on the wire; Timestamp and Sequence are
// assigned by the sender when zero.
type Event struct {
	// Type is one of the EventType constants. Unknown types are
	// carried through unmodified for forward compatibility.
	Type string `json:"type"`

	// ProfileID correlates the event with a worker session.
	ProfileID string `json:"profile_id,omitempty"`

	// LaunchID correlates the event with one launch of that session.
	LaunchID string `json:"launch_id,omitempty"`

	// Timestamp is nanoseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`

	// Sequence is assigned monotonically per connection by the
	// sender. Zero means "assign for me".
	Sequence uint64 `json:"sequence,omitempty"`

	// Data is the open payload map. Typed access goes through
	// payload.go.
	Data map[string]any `json:"data,omitempty"`

	// Status is a free-form outcome marker ("success", "running").
	Status string `json:"status,omitempty"`

	// Error carries a human-readable failure description.
	Error string `json:"error,omitempty"`
}

// NewEvent creates an event of the given type stamped with the current
// time. The sequence is left zero for the channel client to assign.
func NewEvent(eventType string) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
	}
}

// HeartbeatRequest is the one-shot health probe request, sent on its
// own short-lived connection rather than the persistent channel. The
// response is any decodable JSON object.
type HeartbeatRequest struct {
	Type      string `json:"type"`
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
	ProfileID string `json:"profile_id"`
}
