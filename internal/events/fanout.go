package events

import (
	"context"

	"github.com/atmx/vault-engine/internal/model"
)

// Sink receives published events. Implementations must not block.
type Sink interface {
	Publish(ctx context.Context, evt model.Event)
}

// Fanout forwards every event to each of its sinks in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, evt model.Event) {
	for _, s := range f {
		s.Publish(ctx, evt)
	}
}
