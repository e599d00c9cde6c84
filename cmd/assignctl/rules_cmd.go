package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRulesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage tenant assignment rules",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <file.yaml|file.toml>",
			Short: "Upsert every rule of a file by name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return withCode(exitUsage, err)
				}
				return withRuntime(cmd.Context(), func(rt *runtime) error {
					ctx, tenantID, err := rt.scope(cmd.Context(), g)
					if err != nil {
						return err
					}
					res, err := rt.rules().ImportRules(ctx, tenantID, args[0], data)
					if err != nil {
						return serviceCode(err)
					}
					return writeJSON(res)
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List rules in evaluation order",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRuntime(cmd.Context(), func(rt *runtime) error {
					ctx, tenantID, err := rt.scope(cmd.Context(), g)
					if err != nil {
						return err
					}
					rules, err := rt.rules().ListRules(ctx, tenantID)
					if err != nil {
						return serviceCode(err)
					}
					return writeJSON(rules)
				})
			},
		},
	)
	return cmd
}
