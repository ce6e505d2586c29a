package export

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/reportengine/internal/domain"
)

const (
	workbookSheet       = "Report"
	workbookColumnWidth = 24.0
	workbookTitleRow    = 1
	workbookHeaderRow   = 3
	workbookFirstRow    = 4
)

// ToWorkbookBuffer writes table into a single sheet: title row, a blank
// separator, the header row and one row per data row, in the given order.
// Cells that are not scalars are stored as their display string.
func ToWorkbookBuffer(table domain.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", workbookSheet); err != nil {
		return nil, encodingError("rename sheet", err)
	}
	rtl := true
	if err := f.SetSheetView(workbookSheet, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return nil, encodingError("set sheet view", err)
	}

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return nil, encodingError("create title style", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1E3A5F"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, encodingError("create header style", err)
	}

	columns := len(table.Headers)
	if columns == 0 {
		columns = 1
	}

	titleCell, _ := excelize.CoordinatesToCellName(1, workbookTitleRow)
	if err := f.SetCellValue(workbookSheet, titleCell, table.Title); err != nil {
		return nil, encodingError("write title", err)
	}
	if err := f.SetCellStyle(workbookSheet, titleCell, titleCell, titleStyle); err != nil {
		return nil, encodingError("style title", err)
	}

	if len(table.Headers) > 0 {
		headerStart, _ := excelize.CoordinatesToCellName(1, workbookHeaderRow)
		headerEnd, _ := excelize.CoordinatesToCellName(len(table.Headers), workbookHeaderRow)
		headers := make([]any, len(table.Headers))
		for i, h := range table.Headers {
			headers[i] = h
		}
		if err := f.SetSheetRow(workbookSheet, headerStart, &headers); err != nil {
			return nil, encodingError("write headers", err)
		}
		if err := f.SetCellStyle(workbookSheet, headerStart, headerEnd, headerStyle); err != nil {
			return nil, encodingError("style headers", err)
		}
	}

	for i, row := range table.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, workbookFirstRow+i)
		values := make([]any, len(row))
		for j, value := range row {
			values[j] = workbookValue(value)
		}
		if err := f.SetSheetRow(workbookSheet, cell, &values); err != nil {
			return nil, encodingError(fmt.Sprintf("write row %d", i+1), err)
		}
	}

	lastColumn, _ := excelize.ColumnNumberToName(columns)
	if err := f.SetColWidth(workbookSheet, "A", lastColumn, workbookColumnWidth); err != nil {
		return nil, encodingError("set column width", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, encodingError("write workbook", err)
	}
	return buf.Bytes(), nil
}

// workbookValue keeps scalars as typed cells. Non-finite floats have no
// spreadsheet representation and are written as text.
func workbookValue(value any) any {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.DisplayString(v)
		}
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return domain.DisplayString(v)
		}
	}
	if domain.IsScalar(value) {
		return value
	}
	return domain.DisplayString(value)
}

func encodingError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrExportEncodingFailed, step, err)
}
