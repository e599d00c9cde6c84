package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/audit"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/member"
	"github.com/iota-uz/autoassign/modules/assignment/domain/entities/rule"
	"github.com/iota-uz/autoassign/pkg/authz"
)

const (
	exportDateLayout     = "2006-01-02 15:04:05"
	exportFileTimeLayout = "20060102_150405"
	exportSheetName      = "Assignment Audits"
	unassignedLabel      = "Unassigned"
)

var exportHeader = []string{"Date", "Record Type", "Record ID", "Assigned To", "Rule", "Assignment Type", "Context"}

type CSVExport struct {
	CSVContent   string `json:"csv_content"`
	Filename     string `json:"filename"`
	TotalRecords int    `json:"total_records"`
}

type XLSXExport struct {
	Content      []byte `json:"-"`
	Filename     string `json:"filename"`
	TotalRecords int    `json:"total_records"`
}

type AuditExporter struct {
	audits  *AuditService
	members member.Repository
	rules   rule.Repository
	maxRows int
	now     func() time.Time
}

func NewAuditExporter(audits *AuditService, members member.Repository, rules rule.Repository, maxRows int) *AuditExporter {
	return &AuditExporter{audits: audits, members: members, rules: rules, maxRows: maxRows, now: time.Now}
}

// ExportAudits renders every audit row matching filter as CSV, newest first.
func (e *AuditExporter) ExportAudits(ctx context.Context, tenantID uuid.UUID, filter AuditFilter) (*CSVExport, error) {
	rows, err := e.exportRows(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &CSVExport{
		CSVContent:   buf.String(),
		Filename:     fmt.Sprintf("assignment_audits_%s.csv", e.now().Format(exportFileTimeLayout)),
		TotalRecords: len(rows),
	}, nil
}

// ExportAuditsXLSX renders the same rows as ExportAudits into a single-sheet workbook.
func (e *AuditExporter) ExportAuditsXLSX(ctx context.Context, tenantID uuid.UUID, filter AuditFilter) (*XLSXExport, error) {
	rows, err := e.exportRows(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(exportSheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}
	for i, title := range exportHeader {
		c, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheetName, c, title); err != nil {
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(exportSheetName, "A1", last, headerStyle); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(exportSheetName, "A", "A", 20)
	_ = f.SetColWidth(exportSheetName, "B", "F", 16)
	_ = f.SetColWidth(exportSheetName, "G", "G", 60)

	for r, row := range rows {
		for c, value := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(exportSheetName, cell, value); err != nil {
				return nil, err
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return &XLSXExport{
		Content:      buf.Bytes(),
		Filename:     fmt.Sprintf("assignment_audits_%s.xlsx", e.now().Format(exportFileTimeLayout)),
		TotalRecords: len(rows),
	}, nil
}

func (e *AuditExporter) exportRows(ctx context.Context, tenantID uuid.UUID, filter AuditFilter) ([][]string, error) {
	ctx, err := scopeTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, e.audits.authorizer, tenantID, authz.ObjectAssignmentAudits, authz.ActionExport); err != nil {
		return nil, err
	}
	params, err := e.audits.findParams(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	total, err := e.audits.repo.Count(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	if e.maxRows > 0 && total > int64(e.maxRows) {
		return nil, invalidInput(fmt.Sprintf("export matches %d rows, more than the limit of %d; narrow the filter", total, e.maxRows), nil)
	}
	rows, err := e.audits.repo.List(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}

	names, err := e.userNames(ctx, rows)
	if err != nil {
		return nil, err
	}
	ruleNames, err := e.ruleNames(ctx, rows)
	if err != nil {
		return nil, err
	}

	out := make([][]string, 0, len(rows))
	for _, a := range rows {
		assignedTo := unassignedLabel
		if a.AssignedUserID != nil {
			assignedTo = names[*a.AssignedUserID]
			if assignedTo == "" {
				assignedTo = strconv.FormatUint(uint64(*a.AssignedUserID), 10)
			}
		}
		ruleName := ""
		if a.RuleID != nil {
			ruleName = ruleNames[*a.RuleID]
			if ruleName == "" {
				ruleName = strconv.FormatInt(*a.RuleID, 10)
			}
		}
		ctxJSON, err := compactContext(a.Context)
		if err != nil {
			return nil, err
		}
		out = append(out, []string{
			a.CreatedAt.UTC().Format(exportDateLayout),
			string(a.RecordType),
			a.RecordID,
			assignedTo,
			ruleName,
			string(a.AssignmentType),
			ctxJSON,
		})
	}
	return out, nil
}

func (e *AuditExporter) userNames(ctx context.Context, rows []*audit.Audit) (map[uint]string, error) {
	ids := make([]uint, 0, len(rows))
	for _, a := range rows {
		if a.AssignedUserID != nil {
			ids = append(ids, *a.AssignedUserID)
		}
	}
	names := make(map[uint]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	ms, err := e.members.ListByIDs(ctx, normalizeEligible(ids))
	if err != nil {
		return nil, mapError(err)
	}
	for _, m := range ms {
		names[m.ID] = m.FullName()
	}
	return names, nil
}

func (e *AuditExporter) ruleNames(ctx context.Context, rows []*audit.Audit) (map[int64]string, error) {
	names := map[int64]string{}
	needed := false
	for _, a := range rows {
		if a.RuleID != nil {
			needed = true
			break
		}
	}
	if !needed {
		return names, nil
	}
	rules, err := e.rules.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	for _, r := range rules {
		names[r.ID] = r.Name
	}
	return names, nil
}

// compactContext serializes the decision context as compact JSON with sorted keys.
func compactContext(ctx map[string]any) (string, error) {
	if len(ctx) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
