package statistics

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	tenantSheet  = "Tenants"
)

// ExportCollectionRate renders CollectionRate as an xlsx workbook with a
// per-property summary sheet and a per-tenant sheet.
func (s *Service) ExportCollectionRate(ctx context.Context, ownerID, month string) ([]byte, string, error) {
	rate, err := s.CollectionRate(ctx, ownerID, month)
	if err != nil {
		return nil, "", err
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, "", err
	}
	if _, err := f.NewSheet(tenantSheet); err != nil {
		return nil, "", err
	}

	summary := [][]any{
		{"Month", rate.Month},
		{"Expected tenants", rate.ExpectedCount},
		{"Paid", rate.PaidCount},
		{"Partial", rate.PartialCount},
		{"Unpaid", rate.UnpaidCount},
		{"Collection rate %", rate.RatePct},
		{"Total expected", rate.TotalExpected.InexactFloat64()},
		{"Total collected", rate.TotalCollected.InexactFloat64()},
		{"Property", "Tenants", "Paid", "Expected", "Collected", "Rate %"},
	}
	for _, p := range rate.ByProperty {
		summary = append(summary, []any{
			p.PropertyName, p.TenantCount, p.PaidCount,
			p.Expected.InexactFloat64(), p.Collected.InexactFloat64(), p.RatePct,
		})
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return nil, "", err
	}

	tenants := [][]any{{"Property", "Unit", "Tenant", "Expected", "Collected", "Status"}}
	for _, t := range rate.Tenants {
		tenants = append(tenants, []any{
			t.PropertyName, t.UnitNumber, t.TenantName,
			t.Expected.InexactFloat64(), t.Collected.InexactFloat64(), string(t.Status),
		})
	}
	if err := writeRows(f, tenantSheet, tenants); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), fmt.Sprintf("collection-rate-%s.xlsx", rate.Month), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
