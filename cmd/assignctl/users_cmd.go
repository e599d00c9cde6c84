package main

import (
	"github.com/spf13/cobra"
)

func newUsersCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Tenant users as seen by the assignment engine",
	}

	var requester uint
	eligible := &cobra.Command{
		Use:   "eligible",
		Short: "List users round robin rotates over, ordered by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				ctx, tenantID, err := rt.scope(cmd.Context(), g)
				if err != nil {
					return err
				}
				var req *uint
				if requester != 0 {
					req = &requester
				}
				users, err := rt.eligibility().ListEligibleUsers(ctx, tenantID, req)
				if err != nil {
					return serviceCode(err)
				}
				return writeJSON(users)
			})
		},
	}
	eligible.Flags().UintVar(&requester, "requester", 0, "Narrow to the requester's teams when team scoping is on")
	cmd.AddCommand(eligible)
	return cmd
}
