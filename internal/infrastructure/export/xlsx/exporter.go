// Package xlsx renders cost estimates as Excel workbooks.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/plan-takeoff/internal/core/domain"
)

const (
	sheetName   = "Estimate"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var itemHeader = []string{"Item", "Category", "Unit", "Quantity", "Unit cost", "Total", "Measurement"}

type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

// Export writes one sheet: a title block, the item table and the totals.
// e is expected to be recalculated already.
func (Exporter) Export(e domain.CostEstimate, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("xlsx rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	sw := &sheetWriter{f: f}
	name := e.Name
	if name == "" {
		name = "Cost estimate " + e.ID
	}
	sw.row(name)
	sw.style(1, 1, title)
	sw.row("Project", e.ProjectID)
	if e.MapID != nil {
		sw.row("Map", *e.MapID)
	}
	sw.row("Currency", e.Currency)
	sw.row()

	headerRow := sw.next
	cells := make([]any, len(itemHeader))
	for i, h := range itemHeader {
		cells[i] = h
	}
	sw.row(cells...)
	sw.style(headerRow, len(itemHeader), bold)

	for _, item := range e.Items {
		sw.row(item.Name, string(item.Category), item.Unit, item.Quantity, item.UnitCost, item.TotalCost, item.MeasurementID)
	}
	sw.row()

	totalsRow := sw.next
	sw.row("Subtotal", "", "", "", "", e.Subtotal)
	sw.row(fmt.Sprintf("Tax (%g%%)", e.TaxRate), "", "", "", "", e.TaxAmount)
	sw.row("Total", "", "", "", "", e.Total)
	sw.style(totalsRow+2, 6, bold)
	if sw.err != nil {
		return fmt.Errorf("xlsx write cells: %w", sw.err)
	}

	if err := f.SetColWidth(sheetName, "A", "A", 36); err != nil {
		return fmt.Errorf("xlsx column width: %w", err)
	}
	if err := f.SetColWidth(sheetName, "B", "G", 14); err != nil {
		return fmt.Errorf("xlsx column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// sheetWriter appends rows and keeps the first error.
type sheetWriter struct {
	f    *excelize.File
	next int
	err  error
}

func (s *sheetWriter) row(values ...any) {
	if s.next == 0 {
		s.next = 1
	}
	r := s.next
	s.next++
	if s.err != nil || len(values) == 0 {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, r)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetSheetRow(sheetName, cell, &values)
}

func (s *sheetWriter) style(row, cols, styleID int) {
	if s.err != nil {
		return
	}
	from, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		s.err = err
		return
	}
	to, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetCellStyle(sheetName, from, to, styleID)
}
