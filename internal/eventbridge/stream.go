// Package eventbridge republishes RTPS discovery lifecycle events onto NATS
// JetStream as an optional, non-critical side channel. It is never on the
// path of the RTPS wire protocol itself: the participant's transport is raw
// UDP (see pkg/rtps/transport), and every publish here is best-effort —
// failures are logged and dropped, exactly as the spec treats discovery as
// observational (spec.md §7).
package eventbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamRTPSEvents is the durable stream that captures all discovery
	// lifecycle events emitted by the local participant.
	StreamRTPSEvents = "RTPS_EVENTS"
	// SubjectDiscovery captures participant/endpoint discovery events.
	SubjectDiscovery = "RTPS_EVENTS.discovery.>"
)

var streamSubjects = []string{SubjectDiscovery}

// Client wraps a NATS connection and JetStream context already bound to
// the RTPS_EVENTS stream: unlike a bare connector, NewClient leaves no
// further setup step for callers to forget before PublishDiscoveryEvent
// can be used.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	Log  *zap.Logger
}

// NewClient connects to NATS, opens a JetStream context, and provisions
// the RTPS_EVENTS stream, idempotently creating it on first run
// (spec.md §7: discovery is observational, so connection failure here
// must never block participant startup — callers treat a non-nil error
// as "run without the side channel", not fatal to RTPS itself).
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("event bridge connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("event bridge jetstream: %w", err)
	}

	c := &Client{Conn: nc, JS: js, Log: logger}
	if err := c.provisionStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("event bridge stream: %w", err)
	}

	logger.Info("event bridge connected", zap.String("url", url), zap.String("stream", StreamRTPSEvents))
	return c, nil
}

// provisionStream idempotently ensures the RTPS_EVENTS JetStream stream
// exists with the correct subject filter.
func (c *Client) provisionStream() error {
	_, err := c.JS.StreamInfo(StreamRTPSEvents)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      StreamRTPSEvents,
		Subjects:  streamSubjects,
		Storage:   nats.MemoryStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	}
	if _, err := c.JS.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	c.Log.Info("event bridge stream provisioned",
		zap.String("stream", StreamRTPSEvents),
		zap.Strings("subjects", streamSubjects),
	)
	return nil
}

// Close drains and closes the underlying NATS connection. Drain()
// flushes all pending JetStream publish acknowledgments and outstanding
// subscription deliveries before closing; falls back to Close() if
// Drain itself errors (e.g. already disconnected).
func (c *Client) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}

// DiscoveryEvent is the JSON envelope published for every discovery
// lifecycle transition: a participant or endpoint appearing, disappearing,
// or failing QoS compatibility.
type DiscoveryEvent struct {
	Kind      string    `json:"kind"` // participant_discovered|participant_lost|endpoint_matched|endpoint_unmatched|incompatible_qos
	GUID      string    `json:"guid"`
	TopicName string    `json:"topic_name,omitempty"`
	TypeName  string    `json:"type_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishDiscoveryEvent best-effort publishes a discovery lifecycle event.
// Publish failures are logged and dropped: the event bridge is an
// observability side channel, never a dependency of the RTPS protocol
// itself (spec.md §7 treats discovery as best-effort and observational).
func (c *Client) PublishDiscoveryEvent(subject string, ev DiscoveryEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		c.Log.Error("failed to marshal discovery event", zap.Error(err))
		return
	}

	if _, err := c.JS.Publish(subject, data); err != nil {
		c.Log.Warn("event bridge publish failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return
	}

	c.Log.Debug("discovery event published",
		zap.String("subject", subject),
		zap.String("kind", ev.Kind),
		zap.String("guid", ev.GUID),
	)
}
