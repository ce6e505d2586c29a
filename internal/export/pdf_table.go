package export

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/rpattn/reportengine/internal/domain"
)

// RLM is the Unicode right-to-left mark prefixed to every text field in the
// table PDF.
const RLM = "\u200f"

var (
	colorTableHeader = [3]int{30, 58, 95}
	colorTableAlt    = [3]int{241, 245, 249}
	colorTextDark    = [3]int{44, 62, 80}
	colorTextMuted   = [3]int{127, 140, 141}
	colorGridLine    = [3]int{220, 220, 220}
)

const (
	tableMargin     = 12.0
	tableRowHeight  = 7.0
	tableFontSize   = 9.0
	tableTitleSize  = 15.0
	tableBottomEdge = 15.0
)

// FontSet is a UTF-8 font family embedded into table PDFs. It must cover the
// scripts present in report data, Hebrew included.
type FontSet struct {
	Family  string
	Regular []byte
	Bold    []byte
}

// LoadFontSet reads the regular and bold TrueType files from dir.
func LoadFontSet(family, dir, regular, bold string) (FontSet, error) {
	if strings.TrimSpace(family) == "" {
		return FontSet{}, errors.New("font family is required")
	}
	regularBytes, err := os.ReadFile(filepath.Join(dir, regular))
	if err != nil {
		return FontSet{}, fmt.Errorf("read regular font: %w", err)
	}
	boldBytes, err := os.ReadFile(filepath.Join(dir, bold))
	if err != nil {
		return FontSet{}, fmt.Errorf("read bold font: %w", err)
	}
	return FontSet{Family: family, Regular: regularBytes, Bold: boldBytes}, nil
}

// TextShaper reorders or shapes bidirectional text before it is embedded.
type TextShaper func(string) string

// TablePDF renders tables straight to PDF without a browser.
type TablePDF struct {
	fonts FontSet
	shape TextShaper
}

// NewTablePDF returns a generator using fonts. shape may be nil.
func NewTablePDF(fonts FontSet, shape TextShaper) (*TablePDF, error) {
	if len(fonts.Regular) == 0 || len(fonts.Bold) == 0 {
		return nil, errors.New("regular and bold fonts are required")
	}
	if shape == nil {
		shape = func(s string) string { return s }
	}
	return &TablePDF{fonts: fonts, shape: shape}, nil
}

// SimpleTablePDF renders table as an A4 document with a styled header row and
// alternating row shading. Columns run right to left.
func (g *TablePDF) SimpleTablePDF(table domain.Table) ([]byte, error) {
	pdf := g.build(table)
	if err := pdf.Error(); err != nil {
		return nil, encodingError("build table pdf", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, encodingError("write table pdf", err)
	}
	return buf.Bytes(), nil
}

func (g *TablePDF) build(table domain.Table) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(g.fonts.Family, "", g.fonts.Regular)
	pdf.AddUTF8FontFromBytes(g.fonts.Family, "B", g.fonts.Bold)
	pdf.SetMargins(tableMargin, tableMargin, tableMargin)
	pdf.SetAutoPageBreak(false, tableBottomEdge)
	pdf.SetTitle(table.Title, true)
	pdf.AddPage()

	pageWidth, pageHeight := pdf.GetPageSize()
	usable := pageWidth - 2*tableMargin
	widths := columnWidths(table, usable)

	pdf.SetFont(g.fonts.Family, "B", tableTitleSize)
	pdf.SetTextColor(colorTableHeader[0], colorTableHeader[1], colorTableHeader[2])
	pdf.CellFormat(usable, 10, g.text(table.Title), "", 1, "R", false, 0, "")
	pdf.Ln(2)

	g.writeHeader(pdf, table.Headers, widths, pageWidth)

	if len(table.Rows) == 0 {
		pdf.SetFont(g.fonts.Family, "", tableFontSize)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(usable, tableRowHeight, g.text("אין נתונים להצגה"), "1", 1, "C", false, 0, "")
		return pdf
	}

	fill := false
	for _, row := range table.Rows {
		if pdf.GetY()+tableRowHeight > pageHeight-tableBottomEdge {
			pdf.AddPage()
			g.writeHeader(pdf, table.Headers, widths, pageWidth)
			fill = false
		}
		if fill {
			pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		pdf.SetFont(g.fonts.Family, "", tableFontSize)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		x := pageWidth - tableMargin
		for i, width := range widths {
			var value any
			if i < len(row) {
				value = row[i]
			}
			x -= width
			pdf.SetX(x)
			text := fitText(pdf, domain.DisplayString(value), width-2)
			pdf.CellFormat(width, tableRowHeight, g.text(text), "1", 0, "R", fill, 0, "")
		}
		pdf.Ln(-1)
		fill = !fill
	}
	return pdf
}

func (g *TablePDF) writeHeader(pdf *fpdf.Fpdf, headers []string, widths []float64, pageWidth float64) {
	pdf.SetFont(g.fonts.Family, "B", tableFontSize)
	pdf.SetFillColor(colorTableHeader[0], colorTableHeader[1], colorTableHeader[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	x := pageWidth - tableMargin
	for i, width := range widths {
		label := ""
		if i < len(headers) {
			label = headers[i]
		}
		x -= width
		pdf.SetX(x)
		pdf.CellFormat(width, tableRowHeight, g.text(fitText(pdf, label, width-2)), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
}

// text shapes s and marks it right to left.
func (g *TablePDF) text(s string) string {
	return RLM + g.shape(s)
}

// columnWidths scales the width hints to the usable page width, falling back
// to equal columns.
func columnWidths(table domain.Table, usable float64) []float64 {
	n := len(table.Headers)
	if n == 0 {
		for _, row := range table.Rows {
			if len(row) > n {
				n = len(row)
			}
		}
	}
	if n == 0 {
		n = 1
	}
	total := 0.0
	if len(table.Widths) == n {
		for _, w := range table.Widths {
			if w <= 0 {
				total = 0
				break
			}
			total += w
		}
	}
	widths := make([]float64, n)
	for i := range widths {
		if total > 0 {
			widths[i] = table.Widths[i] / total * usable
		} else {
			widths[i] = usable / float64(n)
		}
	}
	return widths
}

// fitText trims s until it fits into width at the current font.
func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	s = strings.Join(strings.Fields(s), " ")
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	// Widths grow with the prefix length, so the longest fitting prefix is
	// found by bisection.
	runes := []rune(s)
	lo, hi := 0, len(runes)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if pdf.GetStringWidth(string(runes[:mid])+"…") <= width {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo]) + "…"
}
