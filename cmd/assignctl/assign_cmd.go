package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/modules/assignment/services"
)

type assignOutput struct {
	*services.Outcome
	AuditID int64  `json:"audit_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newAssignCmd(g *globalFlags) *cobra.Command {
	var (
		recordType string
		recordID   string
		attrsJSON  string
		requester  uint
		manualTo   uint
	)

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a record to a tenant user",
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs := rule.Attributes{}
			if attrsJSON != "" {
				if err := json.Unmarshal([]byte(attrsJSON), &attrs); err != nil {
					return withCode(exitUsage, fmt.Errorf("invalid --attrs: %w", err))
				}
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				ctx, tenantID, err := rt.scope(cmd.Context(), g)
				if err != nil {
					return err
				}
				if manualTo != 0 {
					var actor *uint
					if g.actor != 0 {
						actor = &g.actor
					}
					row, err := rt.assignments().RecordManualAssignment(ctx, tenantID, services.RecordRef{
						Type: audit.RecordType(recordType),
						ID:   recordID,
					}, manualTo, actor)
					if err != nil {
						return serviceCode(err)
					}
					return writeJSON(row)
				}

				rec := services.Record{
					Type:       audit.RecordType(recordType),
					ID:         recordID,
					Attributes: attrs,
				}
				if requester != 0 {
					rec.RequesterID = &requester
				}
				out, err := rt.assignments().Assign(ctx, tenantID, rec)
				res := assignOutput{Outcome: out}
				if out.Audit != nil {
					res.AuditID = out.Audit.ID
				}
				if err != nil {
					// The outcome is still reported so the caller can retry later.
					res.Error = err.Error()
					_ = writeJSON(res)
					return serviceCode(err)
				}
				return writeJSON(res)
			})
		},
	}

	cmd.Flags().StringVar(&recordType, "type", "lead", "Record type (lead|deal|contact)")
	cmd.Flags().StringVar(&recordID, "id", "", "Record id (required)")
	cmd.Flags().StringVar(&attrsJSON, "attrs", "", "Record attributes as a JSON object")
	cmd.Flags().UintVar(&requester, "requester", 0, "Creating user id, narrows eligibility under team scoping")
	cmd.Flags().UintVar(&manualTo, "manual-to", 0, "Record a manual assignment to this user instead of deciding")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
