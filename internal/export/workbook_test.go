package export

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/reportengine/internal/domain"
)

func sampleTable(rows int) domain.Table {
	table := domain.Table{
		Title:   "דוח משתמשים",
		Headers: []string{"שם", "כמות", "פרטים"},
		Widths:  []float64{2, 1, 3},
	}
	for i := 0; i < rows; i++ {
		table.Rows = append(table.Rows, []any{"משתמש", i, map[string]any{"n": i}})
	}
	return table
}

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestToWorkbookBuffer_Layout(t *testing.T) {
	table := sampleTable(3)
	table.Rows[1][0] = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	table.Rows[2][0] = nil

	data, err := ToWorkbookBuffer(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := openWorkbook(t, data)

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != workbookSheet {
		t.Fatalf("expected single %q sheet, got %v", workbookSheet, sheets)
	}
	assertCell := func(cell, want string) {
		t.Helper()
		got, err := f.GetCellValue(workbookSheet, cell)
		if err != nil {
			t.Fatalf("read %s: %v", cell, err)
		}
		if got != want {
			t.Fatalf("cell %s: expected %q, got %q", cell, want, got)
		}
	}
	assertCell("A1", table.Title)
	assertCell("A2", "")
	assertCell("A3", "שם")
	assertCell("C3", "פרטים")
	assertCell("A4", "משתמש")
	assertCell("B5", "1")
	assertCell("C6", `{"n":2}`)
	assertCell("A7", "")

	width, err := f.GetColWidth(workbookSheet, "C")
	if err != nil {
		t.Fatalf("read width: %v", err)
	}
	if width != workbookColumnWidth {
		t.Fatalf("expected uniform width %v, got %v", workbookColumnWidth, width)
	}

	titleStyle, err := f.GetCellStyle(workbookSheet, "A1")
	if err != nil || titleStyle == 0 {
		t.Fatalf("expected styled title cell, got %d %v", titleStyle, err)
	}
}

func TestToWorkbookBuffer_RowCountMatchesInput(t *testing.T) {
	data, err := ToWorkbookBuffer(sampleTable(25))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := openWorkbook(t, data).GetRows(workbookSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != workbookFirstRow-1+25 {
		t.Fatalf("expected %d rows, got %d", workbookFirstRow-1+25, len(rows))
	}
}

func TestToWorkbookBuffer_EmptyRowSet(t *testing.T) {
	data, err := ToWorkbookBuffer(sampleTable(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty workbook")
	}
	rows, err := openWorkbook(t, data).GetRows(workbookSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != workbookHeaderRow {
		t.Fatalf("expected title, blank and header rows, got %d", len(rows))
	}
}

func TestToWorkbookBuffer_NonFiniteFloatsAsText(t *testing.T) {
	table := domain.Table{
		Title:   "מדדים",
		Headers: []string{"a", "b", "c", "d"},
		Rows:    [][]any{{math.NaN(), math.Inf(1), float32(math.Inf(-1)), 2.5}},
	}
	data, err := ToWorkbookBuffer(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := openWorkbook(t, data)

	for cell, want := range map[string]string{"A4": "NaN", "B4": "+Inf", "C4": "-Inf"} {
		got, err := f.GetCellValue(workbookSheet, cell)
		if err != nil || got != want {
			t.Fatalf("cell %s: expected %q, got %q (%v)", cell, want, got, err)
		}
		typ, err := f.GetCellType(workbookSheet, cell)
		if err != nil {
			t.Fatalf("cell %s type: %v", cell, err)
		}
		if typ != excelize.CellTypeSharedString && typ != excelize.CellTypeInlineString {
			t.Fatalf("cell %s: expected a text cell, got type %v", cell, typ)
		}
	}
	if got, _ := f.GetCellValue(workbookSheet, "D4"); got != "2.5" {
		t.Fatalf("finite float changed: %q", got)
	}
}
