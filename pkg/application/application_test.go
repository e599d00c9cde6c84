package application

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type greeter struct{ name string }

func TestServiceRegistry(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterServices(&greeter{name: "x"})

	svc := app.Service(greeter{}).(*greeter)
	require.Equal(t, "x", svc.name)
	require.Same(t, svc, app.Service((*greeter)(nil)))
	require.Len(t, app.Services(), 1)
	require.NotNil(t, app.EventPublisher())
	require.Nil(t, app.DB())

	require.Panics(t, func() { app.Service(struct{}{}) })
}
