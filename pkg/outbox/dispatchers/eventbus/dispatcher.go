package eventbus

import (
	"context"

	"github.com/iota-uz/autoassign/pkg/eventbus"
	"github.com/iota-uz/autoassign/pkg/outbox"
)

// Dispatcher hands relayed messages to in-process subscribers.
// Subscribers take (meta *outbox.Meta, payload json.RawMessage) and may return an error.
type Dispatcher struct {
	bus eventbus.EventBus
}

func New(bus eventbus.EventBus) *Dispatcher {
	return &Dispatcher{bus: bus}
}

func (d *Dispatcher) Dispatch(_ context.Context, msg outbox.DispatchedMessage) error {
	meta := msg.Meta
	return d.bus.PublishE(&meta, msg.Payload)
}
