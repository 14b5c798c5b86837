// Package export renders session reports for download.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"storecount/internal/domain/counting"
)

// XLSXContentType is the MIME type of a rendered workbook.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	summarySheet = "Summary"
	itemsSheet   = "Items"
)

var itemHeadings = []any{
	"SKU", "Product", "Expected", "Physical", "Difference", "Classification", "Unit cost", "Difference value",
}

// XLSXFilename is the attachment name offered for a report.
func XLSXFilename(r *counting.Report) string {
	return fmt.Sprintf("count-session-%s.xlsx", r.Session.ID)
}

// WriteXLSX renders r as a workbook with a summary sheet and one row per
// counted product, in report order.
func WriteXLSX(w io.Writer, r *counting.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeSummary(f, r); err != nil {
		return err
	}

	if _, err := f.NewSheet(itemsSheet); err != nil {
		return fmt.Errorf("create items sheet: %w", err)
	}
	if err := writeItems(f, r.Items); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, r *counting.Report) error {
	status := string(counting.StatusOpen)
	finalized := ""
	if r.Session.FinalizedAt != nil {
		status = string(counting.StatusFinalized)
		finalized = r.Session.FinalizedAt.Format(time.RFC3339)
	}

	rows := [][]any{
		{"Session", r.Session.Name},
		{"Session ID", r.Session.ID.String()},
		{"Store ID", r.Session.StoreID.String()},
		{"Status", status},
		{"Created", r.Session.CreatedAt.Format(time.RFC3339)},
		{"Created by", r.Session.CreatedBy},
		{"Finalized", finalized},
		{"Reconciled", r.Session.Reconciled},
		{"Scope", r.Session.Scope},
		{},
		{"Total products", r.Summary.TotalProducts},
		{"Correct", r.Summary.CorrectCount},
		{"Discrepancies", r.Summary.Discrepancies},
		{"Surplus items", r.Summary.PositiveDiscrepancies},
		{"Shortage items", r.Summary.NegativeDiscrepancies},
		{"Surplus value", r.Summary.SurplusValue.InexactFloat64()},
		{"Shortage value", r.Summary.ShortageValue.InexactFloat64()},
		{"Generated", r.GeneratedAt.Format(time.RFC3339)},
	}
	for i, row := range rows {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "A", 18)
}

func writeItems(f *excelize.File, items []counting.ReportItem) error {
	if err := setRow(f, itemsSheet, 1, itemHeadings); err != nil {
		return err
	}
	for i, it := range items {
		row := []any{
			it.SKU,
			it.ProductName,
			it.ExpectedStock,
			it.PhysicalStock,
			it.Difference,
			string(it.Classification),
			it.UnitCost.InexactFloat64(),
			it.DifferenceValue.InexactFloat64(),
		}
		if err := setRow(f, itemsSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(itemsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	return f.SetColWidth(itemsSheet, "B", "B", 32)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
