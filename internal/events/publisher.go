// Package events delivers committed engine events to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/atmx/vault-engine/internal/model"
)

const (
	StreamName    = "VAULT_EVENTS"
	SubjectPrefix = "vault.events"
)

// streamPublisher is the subset of jetstream.JetStream used here.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher publishes events to NATS JetStream.
// Subjects follow the pattern: vault.events.{type}
//
// Publish only enqueues; Run drains the queue so a slow broker never blocks
// the engine. Events are dropped when the queue is full; the journal
// remains the record of what happened.
type JetStreamPublisher struct {
	js    streamPublisher
	queue chan model.Event
}

func NewJetStreamPublisher(js streamPublisher, buffer int) *JetStreamPublisher {
	return &JetStreamPublisher{
		js:    js,
		queue: make(chan model.Event, buffer),
	}
}

func (p *JetStreamPublisher) Publish(_ context.Context, evt model.Event) {
	select {
	case p.queue <- evt:
	default:
		slog.Warn("event queue full, dropping", "type", evt.Type, "entry_id", evt.EntryID)
	}
}

// Run drains the queue until ctx is cancelled.
func (p *JetStreamPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-p.queue:
			if err := p.publish(ctx, evt); err != nil {
				// Non-fatal: consumers can fall back to the history endpoint.
				slog.Warn("outbound publish failed", "type", evt.Type, "entry_id", evt.EntryID, "err", err)
			}
		}
	}
}

func (p *JetStreamPublisher) publish(ctx context.Context, evt model.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.js.Publish(ctx, Subject(evt.Type), data, jetstream.WithMsgID(evt.EntryID))
	return err
}

// Subject returns the subject events of the given type are published on.
func Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, eventType)
}

// EnsureStream creates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	slog.Info("ensured event stream", "stream", StreamName)
	return nil
}
