// Package messagebus provides optional, fire-and-forget fan-out of
// orchestration events (project creation and deletion) over NATS
// JetStream, so in-cluster consumers such as
// dashboards or audit sinks can observe them without polling the HTTP API.
// A nil *Bus is a valid no-op: nothing downstream of the orchestrator
// depends on delivery.
package messagebus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// ProjectEvent is published once per affected project after a synchronous
// saga or activity completes.
type ProjectEvent struct {
	ProjectID string                 `json:"project_id"`
	EventType string                 `json:"event_type"` // e.g. "created", "deleted"
	Detail    map[string]interface{} `json:"detail,omitempty"`
	OccurredAtUnix int64             `json:"occurred_at_unix"`
}

// Config configures the JetStream connection.
type Config struct {
	URL        string
	StreamName string
	Timeout    time.Duration
}

// Bus wraps a NATS JetStream connection used purely for publishing.
type Bus struct {
	conn       *nats.Conn
	js         nats.JetStreamContext
	streamName string
}

// New connects to NATS and ensures the event stream exists. Returns
// (nil, nil) when cfg.URL is empty, so callers can treat an unconfigured
// bus identically to a connection failure they chose to tolerate.
func New(cfg Config) (*Bus, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "ORCHESTRATOR"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("messagebus: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("messagebus: reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	b := &Bus{conn: nc, js: js, streamName: cfg.StreamName}
	if err := b.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bus) ensureStream() error {
	cfg := &nats.StreamConfig{
		Name:      b.streamName,
		Subjects:  []string{"orchestrator.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
		Replicas:  1,
		Discard:   nats.DiscardOld,
	}
	if _, err := b.js.StreamInfo(b.streamName); err != nil {
		if _, err := b.js.AddStream(cfg); err != nil {
			return fmt.Errorf("creating JetStream stream: %w", err)
		}
		return nil
	}
	_, err := b.js.UpdateStream(cfg)
	if err != nil {
		return fmt.Errorf("updating JetStream stream: %w", err)
	}
	return nil
}

// PublishProjectEvent publishes a project lifecycle event. A nil Bus is a
// valid no-op: callers never need to nil-check before invoking this.
func (b *Bus) PublishProjectEvent(event ProjectEvent) error {
	if b == nil {
		return nil
	}
	subject := fmt.Sprintf("orchestrator.events.%s.%s", event.EventType, event.ProjectID)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling project event: %w", err)
	}
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing project event to %s: %w", subject, err)
	}
	return nil
}

// Close releases the underlying NATS connection. Safe to call on a nil Bus.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.conn.Close()
	return nil
}
