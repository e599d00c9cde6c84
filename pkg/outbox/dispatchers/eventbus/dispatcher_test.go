package eventbus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	bus "github.com/iota-uz/autoassign/pkg/eventbus"
	"github.com/iota-uz/autoassign/pkg/outbox"
)

func TestDispatcher_DeliversMetaAndPayload(t *testing.T) {
	b := bus.NewEventPublisher(logrus.New())
	var (
		gotMeta    *outbox.Meta
		gotPayload json.RawMessage
	)
	b.Subscribe(func(meta *outbox.Meta, payload json.RawMessage) {
		gotMeta, gotPayload = meta, payload
	})

	tenantID := uuid.New()
	err := New(b).Dispatch(context.Background(), outbox.DispatchedMessage{
		Meta:    outbox.Meta{TenantID: tenantID, Topic: "assignment.decided", Attempts: 1},
		Payload: json.RawMessage(`{"record_id":"lead-1"}`),
	})
	require.NoError(t, err)
	require.Equal(t, tenantID, gotMeta.TenantID)
	require.JSONEq(t, `{"record_id":"lead-1"}`, string(gotPayload))
}

func TestDispatcher_FailsWithoutSubscribers(t *testing.T) {
	err := New(bus.NewEventPublisher(logrus.New())).Dispatch(context.Background(), outbox.DispatchedMessage{})
	require.ErrorIs(t, err, bus.ErrNoSubscribers)
}
