package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	tenant string
	actor  uint
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "assignctl",
		Short:         "Multi-tenant record assignment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.tenant, "tenant", "", "Tenant UUID")
	cmd.PersistentFlags().UintVar(&g.actor, "actor", 0, "Acting user id (0 = system)")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newAssignCmd(g))
	cmd.AddCommand(newDefaultsCmd(g))
	cmd.AddCommand(newUsersCmd(g))
	cmd.AddCommand(newAuditsCmd(g))
	cmd.AddCommand(newRulesCmd(g))
	cmd.AddCommand(newRelayCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
