package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/autoassign/modules/assignment/infrastructure/persistence"
	"github.com/iota-uz/autoassign/pkg/metrics"
	"github.com/iota-uz/autoassign/pkg/outbox"
	eventbusdispatcher "github.com/iota-uz/autoassign/pkg/outbox/dispatchers/eventbus"
)

func newRelayCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Drain the assignment outbox into the in-process event bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withRuntime(ctx, func(rt *runtime) error {
				logger := rt.conf.Logger()
				bus := rt.app.EventPublisher()
				bus.Subscribe(func(meta *outbox.Meta, payload json.RawMessage) {
					logger.WithFields(logrus.Fields{
						"tenant_id": meta.TenantID,
						"topic":     meta.Topic,
						"event_id":  meta.EventID,
						"sequence":  meta.Sequence,
						"attempts":  meta.Attempts,
					}).Info(string(payload))
				})

				relay, err := outbox.NewRelay(rt.pool, persistence.OutboxTable, eventbusdispatcher.New(bus), outbox.RelayOptions{
					Logger: logger.WithField("component", "assignment-outbox-relay"),
				})
				if err != nil {
					return err
				}
				if once {
					n, err := relay.ProcessOnce(ctx)
					if err != nil {
						return withCode(exitDB, err)
					}
					return writeJSON(map[string]int{"claimed": n})
				}

				g, gctx := errgroup.WithContext(ctx)
				if rt.conf.Prometheus.Enabled {
					g.Go(func() error {
						return metrics.Serve(gctx, rt.conf.Prometheus.Addr, rt.conf.Prometheus.Path, logger)
					})
				}
				g.Go(func() error {
					return relay.Run(gctx)
				})
				if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process a single batch and exit")
	return cmd
}
