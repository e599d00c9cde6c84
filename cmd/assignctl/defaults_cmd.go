package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iota-uz/autoassign/modules/assignment/services"
)

func newDefaultsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Inspect and change tenant assignment defaults",
	}

	var payload string
	update := &cobra.Command{
		Use:   "update",
		Short: "Update defaults from a JSON object (use - to read stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data := []byte(payload)
			if payload == "-" {
				var err error
				if data, err = io.ReadAll(os.Stdin); err != nil {
					return withCode(exitUsage, err)
				}
			}
			dto, err := services.DecodeUpdateDefaults(data)
			if err != nil {
				return serviceCode(err)
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				ctx, tenantID, err := rt.scope(cmd.Context(), g)
				if err != nil {
					return err
				}
				d, err := rt.defaults().UpdateDefaults(ctx, tenantID, dto)
				if err != nil {
					return serviceCode(err)
				}
				return writeJSON(d)
			})
		},
	}
	update.Flags().StringVar(&payload, "json", "", `Fields to change, e.g. {"default_user_id": 4}`)
	_ = update.MarkFlagRequired("json")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show defaults, creating them on first access",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRuntime(cmd.Context(), func(rt *runtime) error {
					ctx, tenantID, err := rt.scope(cmd.Context(), g)
					if err != nil {
						return err
					}
					d, err := rt.defaults().GetDefaults(ctx, tenantID)
					if err != nil {
						return serviceCode(err)
					}
					return writeJSON(d)
				})
			},
		},
		update,
		&cobra.Command{
			Use:   "toggle",
			Short: "Flip automatic assignment on or off",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRuntime(cmd.Context(), func(rt *runtime) error {
					ctx, tenantID, err := rt.scope(cmd.Context(), g)
					if err != nil {
						return err
					}
					d, err := rt.defaults().ToggleAutomaticAssignment(ctx, tenantID)
					if err != nil {
						return serviceCode(err)
					}
					return writeJSON(d)
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Reset every round-robin cursor of the tenant to zero",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRuntime(cmd.Context(), func(rt *runtime) error {
					ctx, tenantID, err := rt.scope(cmd.Context(), g)
					if err != nil {
						return err
					}
					if err := rt.defaults().ResetRoundRobinCounters(ctx, tenantID); err != nil {
						return serviceCode(err)
					}
					return writeJSON(map[string]any{"reset": true})
				})
			},
		},
	)
	return cmd
}
