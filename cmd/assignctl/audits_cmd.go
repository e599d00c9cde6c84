package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/services"
)

type auditFilterFlags struct {
	recordType     string
	recordID       string
	assignedTo     uint
	ruleID         int64
	assignmentType string
	dateFrom       string
	dateTo         string
	requester      uint
}

func (f *auditFilterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.recordType, "record-type", "", "lead|deal|contact")
	cmd.Flags().StringVar(&f.recordID, "record-id", "", "Record id")
	cmd.Flags().UintVar(&f.assignedTo, "assigned-to", 0, "Assigned user id")
	cmd.Flags().Int64Var(&f.ruleID, "rule", 0, "Rule id")
	cmd.Flags().StringVar(&f.assignmentType, "assignment-type", "", "rule|round_robin|default|manual")
	cmd.Flags().StringVar(&f.dateFrom, "date-from", "", "Start date (UTC, YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.dateTo, "date-to", "", "End date, inclusive (UTC, YYYY-MM-DD)")
	cmd.Flags().UintVar(&f.requester, "requester", 0, "Hide rows outside the requester's teams when team scoping is on")
}

func (f *auditFilterFlags) filter() (services.AuditFilter, error) {
	from, err := parseDateUTC(f.dateFrom)
	if err != nil {
		return services.AuditFilter{}, err
	}
	to, err := parseDateUTC(f.dateTo)
	if err != nil {
		return services.AuditFilter{}, err
	}
	out := services.AuditFilter{
		RecordType:     audit.RecordType(f.recordType),
		RecordID:       f.recordID,
		AssignmentType: audit.AssignmentType(f.assignmentType),
		DateFrom:       from,
		DateTo:         endOfDay(to),
	}
	if f.assignedTo != 0 {
		out.AssignedUserID = &f.assignedTo
	}
	if f.ruleID != 0 {
		out.RuleID = &f.ruleID
	}
	if f.requester != 0 {
		out.RequesterID = &f.requester
	}
	return out, nil
}

func newAuditsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audits",
		Short: "Query the assignment audit trail",
	}
	cmd.AddCommand(newAuditsListCmd(g), newAuditsExportCmd(g), newAuditsStatsCmd(g))
	return cmd
}

func newAuditsListCmd(g *globalFlags) *cobra.Command {
	var (
		flags   auditFilterFlags
		page    int
		perPage int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit rows, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				ctx, tenantID, err := rt.scope(cmd.Context(), g)
				if err != nil {
					return err
				}
				res, err := rt.audits().ListAudits(ctx, tenantID, filter, page, perPage)
				if err != nil {
					return serviceCode(err)
				}
				return writeJSON(res)
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "Rows per page (0 = configured default)")
	return cmd
}

func newAuditsExportCmd(g *globalFlags) *cobra.Command {
	var (
		flags  auditFilterFlags
		format string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export matching audit rows as CSV or XLSX",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			if format != "csv" && format != "xlsx" {
				return withCode(exitUsage, fmt.Errorf("invalid --format %q (expected csv|xlsx)", format))
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				ctx, tenantID, err := rt.scope(cmd.Context(), g)
				if err != nil {
					return err
				}
				var (
					filename string
					content  []byte
					total    int
				)
				if format == "xlsx" {
					res, err := rt.exporter().ExportAuditsXLSX(ctx, tenantID, filter)
					if err != nil {
						return serviceCode(err)
					}
					filename, content, total = res.Filename, res.Content, res.TotalRecords
				} else {
					res, err := rt.exporter().ExportAudits(ctx, tenantID, filter)
					if err != nil {
						return serviceCode(err)
					}
					filename, content, total = res.Filename, []byte(res.CSVContent), res.TotalRecords
				}
				path := filepath.Join(outDir, filename)
				if err := os.WriteFile(path, content, 0o644); err != nil {
					return err
				}
				return writeJSON(map[string]any{"filename": path, "total_records": total})
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "csv", "csv|xlsx")
	cmd.Flags().StringVar(&outDir, "out", ".", "Directory to write the file into")
	return cmd
}

func newAuditsStatsCmd(g *globalFlags) *cobra.Command {
	var recordType, dateFrom, dateTo string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate decisions by type, rule and user",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseDateUTC(dateFrom)
			if err != nil {
				return err
			}
			to, err := parseDateUTC(dateTo)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				ctx, tenantID, err := rt.scope(cmd.Context(), g)
				if err != nil {
					return err
				}
				stats, err := rt.audits().GetAssignmentStats(ctx, tenantID, services.StatsFilter{
					RecordType: audit.RecordType(recordType),
					DateFrom:   from,
					DateTo:     endOfDay(to),
				})
				if err != nil {
					return serviceCode(err)
				}
				return writeJSON(stats)
			})
		},
	}
	cmd.Flags().StringVar(&recordType, "record-type", "", "lead|deal|contact")
	cmd.Flags().StringVar(&dateFrom, "date-from", "", "Start date (UTC, YYYY-MM-DD)")
	cmd.Flags().StringVar(&dateTo, "date-to", "", "End date, inclusive (UTC, YYYY-MM-DD)")
	return cmd
}
