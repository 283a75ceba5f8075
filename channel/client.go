// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/warden-foundation/warden/lib/clock"
	"github.com/warden-foundation/warden/lib/version"
	"github.com/warden-foundation/warden/wire"
)

// ErrNotConnected reports a Send attempted while the channel is
// disconnected. Supervisory emitters treat this as "drop the event",
// not as a failure to propagate.
var ErrNotConnected = errors.New("event channel not connected")

// inboundQueueCapacity bounds the queue between the receive loop and
// Events() consumers. On overflow the newest event is dropped so the
// network reader never blocks.
const inboundQueueCapacity = 100

// Options configures a Client. Zero-value durations fall back to the
// documented defaults.
type Options struct {
	// Address is the core service's host:port.
	Address string

	// DialTimeout bounds each connection attempt. Default 5s.
	DialTimeout time.Duration

	// ReconnectMin is the delay before the first reconnect attempt;
	// each failed attempt doubles it. Default 2s.
	ReconnectMin time.Duration

	// ReconnectMax caps the doubled delay. Default 60s.
	ReconnectMax time.Duration

	// KeepaliveInterval is the PING period while connected.
	// Default 30s.
	KeepaliveInterval time.Duration

	// Capabilities is announced in the REGISTER event.
	Capabilities []string

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Dial overrides the dialer. Tests inject failures here; the
	// default is net.DialTimeout.
	Dial func(address string, timeout time.Duration) (net.Conn, error)
}

func (o *Options) applyDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = 2 * time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 60 * time.Second
	}
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Dial == nil {
		o.Dial = func(address string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", address, timeout)
		}
	}
}

// Client is the persistent event channel client. Create with New,
// start with Connect, shut down with Close.
type Client struct {
	options Options

	ctx    context.Context
	cancel context.CancelFunc

	// connMu guards conn and connected. Held only around handle
	// mutation, never across network I/O.
	connMu    sync.Mutex
	conn      net.Conn
	connected bool

	// writeMu serializes whole-frame writes so concurrent senders
	// never interleave frames.
	writeMu sync.Mutex

	// sequenceMu guards the outbound sequence counter.
	sequenceMu sync.Mutex
	sequence   uint64

	// lastEventMu guards lastEventTime, stamped by the receive loop.
	lastEventMu   sync.Mutex
	lastEventTime time.Time
	lastEventNano int64

	// reconnectMu guards the backoff state and pending timer.
	reconnectMu    sync.Mutex
	reconnectDelay time.Duration
	reconnectTimer *clock.Timer

	keepaliveOnce sync.Once

	events chan wire.Event

	// loops tracks the receive and keepalive goroutines for Close.
	loops sync.WaitGroup
}

// New creates a disconnected client. Call Connect to establish the
// channel.
func New(options Options) *Client {
	options.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		options: options,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan wire.Event, inboundQueueCapacity),
	}
}

// Connect dials the core service, sends the REGISTER event, and
// starts the receive and keepalive loops. Safe to call again after a
// failure; the reconnect path calls it internally.
func (c *Client) Connect() error {
	conn, err := c.options.Dial(c.options.Address, c.options.DialTimeout)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.options.Address, err)
	}

	c.connMu.Lock()
	if c.ctx.Err() != nil {
		c.connMu.Unlock()
		conn.Close()
		return c.ctx.Err()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.connected = true
	c.connMu.Unlock()

	// A successful connection resets the backoff schedule.
	c.reconnectMu.Lock()
	c.reconnectDelay = c.options.ReconnectMin
	c.reconnectMu.Unlock()

	c.options.Logger.Info("event channel connected", "address", c.options.Address)

	if err := c.sendRegister(); err != nil {
		c.options.Logger.Warn("registration send failed", "error", err)
	}

	c.loops.Add(1)
	go c.receiveLoop(conn)

	c.keepaliveOnce.Do(func() {
		c.loops.Add(1)
		go c.keepaliveLoop()
	})

	return nil
}

// sendRegister announces this supervisor on a fresh connection.
func (c *Client) sendRegister() error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	event := wire.Event{
		Type: wire.EventTypeRegister,
		Data: wire.RegisterPayload{
			Version:      version.Version,
			Hostname:     hostname,
			PID:          os.Getpid(),
			Capabilities: c.options.Capabilities,
		}.Map(),
	}
	return c.Send(event)
}

// Send assigns sequence and timestamp when absent, frames the event,
// and writes it as one logical write. Concurrent Send calls are
// serialized by the write lock; frames never interleave. A write
// failure marks the channel disconnected and schedules a reconnect.
func (c *Client) Send(event wire.Event) error {
	c.connMu.Lock()
	conn := c.conn
	connected := c.connected
	c.connMu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	if event.Sequence == 0 {
		c.sequenceMu.Lock()
		c.sequence++
		event.Sequence = c.sequence
		c.sequenceMu.Unlock()
	}
	if event.Timestamp == 0 {
		event.Timestamp = c.options.Clock.Now().UnixNano()
	}

	frame, err := wire.EncodeEvent(event)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	_, err = conn.Write(frame)
	c.writeMu.Unlock()

	if err != nil {
		c.options.Logger.Warn("event channel write failed", "type", event.Type, "error", err)
		c.handleDisconnect(conn)
		return fmt.Errorf("writing %s event: %w", event.Type, err)
	}
	return nil
}

// PollEvents requests redelivery of events emitted since the given
// nanosecond timestamp. Sent after reconnecting to recover events
// missed while disconnected.
func (c *Client) PollEvents(since int64) error {
	event := wire.NewEvent(wire.EventTypePollEvents)
	event.Data = wire.PollEventsPayload{Since: since}.Map()
	return c.Send(event)
}

// Events returns the bounded inbound queue. The channel is never
// closed; consumers select against their own shutdown signal.
func (c *Client) Events() <-chan wire.Event { return c.events }

// Connected reports whether the channel currently has a live
// connection.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// LastEventTime returns the local receive time and wire timestamp of
// the most recent inbound event. Zero values mean none received.
func (c *Client) LastEventTime() (time.Time, int64) {
	c.lastEventMu.Lock()
	defer c.lastEventMu.Unlock()
	return c.lastEventTime, c.lastEventNano
}

// LastSequence returns the most recently assigned outbound sequence.
func (c *Client) LastSequence() uint64 {
	c.sequenceMu.Lock()
	defer c.sequenceMu.Unlock()
	return c.sequence
}

// receiveLoop reads frames from one connection until it fails. Each
// decoded event stamps the last-event time and lands on the bounded
// queue; a full queue drops the event rather than blocking the
// reader. Malformed JSON inside a good frame is logged and skipped;
// any other error tears the connection down and schedules reconnect.
func (c *Client) receiveLoop(conn net.Conn) {
	defer c.loops.Done()

	for {
		event, err := wire.ReadEvent(conn)
		if err != nil {
			var decodeErr *wire.DecodeError
			if errors.As(err, &decodeErr) {
				c.options.Logger.Warn("discarding undecodable event", "error", decodeErr)
				continue
			}
			if c.ctx.Err() != nil {
				return
			}
			c.options.Logger.Warn("event channel read failed", "error", err)
			c.handleDisconnect(conn)
			return
		}

		c.lastEventMu.Lock()
		c.lastEventTime = c.options.Clock.Now()
		c.lastEventNano = event.Timestamp
		c.lastEventMu.Unlock()

		select {
		case c.events <- event:
		default:
			c.options.Logger.Warn("inbound event queue full, dropping event",
				"type", event.Type, "sequence", event.Sequence)
		}
	}
}

// keepaliveLoop sends a PING on every interval while connected. A
// failed send is handled inside Send exactly like a read failure.
func (c *Client) keepaliveLoop() {
	defer c.loops.Done()

	ticker := c.options.Clock.NewTicker(c.options.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.Connected() {
				continue
			}
			if err := c.Send(wire.NewEvent(wire.EventTypePing)); err != nil && !errors.Is(err, ErrNotConnected) {
				c.options.Logger.Warn("keepalive failed", "error", err)
			}
		}
	}
}

// handleDisconnect tears down one specific connection. The conn
// argument keeps a stale receive loop from tearing down a newer
// connection established by a racing reconnect.
func (c *Client) handleDisconnect(conn net.Conn) {
	c.connMu.Lock()
	if c.conn != conn {
		c.connMu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	c.connMu.Unlock()
	conn.Close()

	if c.ctx.Err() != nil {
		return
	}

	c.reconnectMu.Lock()
	delay := c.reconnectDelay
	if delay <= 0 {
		delay = c.options.ReconnectMin
	}
	c.scheduleReconnectLocked(delay)
	c.reconnectMu.Unlock()
}

// scheduleReconnectLocked arms the reconnect timer for the given
// delay. Caller holds reconnectMu. Each failed attempt doubles the
// delay up to the ceiling; Connect resets it on success.
func (c *Client) scheduleReconnectLocked(delay time.Duration) {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.options.Logger.Info("scheduling reconnect", "delay", delay)

	c.reconnectTimer = c.options.Clock.AfterFunc(delay, func() {
		if c.ctx.Err() != nil {
			return
		}
		if err := c.Connect(); err != nil {
			next := delay * 2
			if next > c.options.ReconnectMax {
				next = c.options.ReconnectMax
			}
			c.options.Logger.Warn("reconnect failed", "error", err, "next_delay", next)

			c.reconnectMu.Lock()
			c.reconnectDelay = next
			c.scheduleReconnectLocked(next)
			c.reconnectMu.Unlock()
		}
	})
}

// Close cancels the owned background loops, stops the reconnect
// timer, and closes the socket. Events sent after Close return
// ErrNotConnected.
func (c *Client) Close() error {
	c.cancel()

	c.reconnectMu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.reconnectMu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}

	c.loops.Wait()
	return nil
}
