package eventbus

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type decided struct {
	recordID string
}

type reset struct{}

func bufferedLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(level)
	return log, buf
}

func TestPublish_DeliversToMatchingHandlers(t *testing.T) {
	bus := NewEventPublisher(nil)
	var got []string
	bus.Subscribe(func(e *decided) { got = append(got, e.recordID) })
	bus.Subscribe(func(e *reset) { t.Error("should not be called") })

	bus.Publish(&decided{recordID: "lead-1"})

	require.Equal(t, []string{"lead-1"}, got)
	require.Equal(t, 2, bus.SubscribersCount())
}

func TestPublish_WarnsWithoutSubscribers(t *testing.T) {
	log, buf := bufferedLogger(logrus.WarnLevel)
	bus := NewEventPublisher(log)
	bus.Subscribe(func(e *reset) {})

	bus.Publish(&decided{recordID: "x"})

	require.Contains(t, buf.String(), "no matching subscribers")
}

func TestPublish_RecoversFromPanics(t *testing.T) {
	log, buf := bufferedLogger(logrus.WarnLevel)
	bus := NewEventPublisher(log)
	called := false
	bus.Subscribe(func(e *decided) { panic("boom") })
	bus.Subscribe(func(e *decided) { called = true })

	require.NotPanics(t, func() { bus.Publish(&decided{}) })
	require.True(t, called)
	require.Contains(t, buf.String(), "panicked")
	require.NotContains(t, buf.String(), "no matching subscribers")
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(e *decided) {}, []any{&decided{}}))
	require.False(t, MatchSignature(func(e *decided) {}, []any{&reset{}}))
	require.False(t, MatchSignature(func(e *decided) {}, []any{}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []any{context.Background()}))
	require.True(t, MatchSignature(func(e *decided) {}, []any{nil}))
	require.False(t, MatchSignature("not a func", nil))
}

func TestPublishE(t *testing.T) {
	t.Run("no subscribers", func(t *testing.T) {
		err := NewEventPublisher(nil).PublishE(&decided{})
		require.ErrorIs(t, err, ErrNoSubscribers)
	})

	t.Run("joins handler errors", func(t *testing.T) {
		bus := NewEventPublisher(nil)
		err1, err2 := errors.New("err1"), errors.New("err2")
		bus.Subscribe(func(e *decided) error { return err1 })
		bus.Subscribe(func(e *decided) error { return err2 })

		err := bus.PublishE(&decided{})
		require.ErrorIs(t, err, err1)
		require.ErrorIs(t, err, err2)
	})

	t.Run("panic surfaces as error", func(t *testing.T) {
		bus := NewEventPublisher(nil)
		bus.Subscribe(func(e *decided) error { panic("boom") })
		require.ErrorContains(t, bus.PublishE(&decided{}), "panicked")
	})

	t.Run("invalid return", func(t *testing.T) {
		bus := NewEventPublisher(nil)
		bus.Subscribe(func(e *decided) int { return 1 })
		require.ErrorIs(t, bus.PublishE(&decided{}), ErrInvalidHandlerReturn)
	})
}
