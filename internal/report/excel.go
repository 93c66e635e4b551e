// Package report renders allocation results into the files handed to
// accounting: a spreadsheet, per-person documents, and a bundle of both.
package report

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/matrix"
)

const (
	commentAuthor = "timereport"
	helpSheet     = "How to use"
	highlightRGB  = "FFFF7F"
	zeroFontRGB   = "BBBBBB"
	percentFormat = 10 // 0.00%
	maxColWidth   = 60
)

var helpLines = []string{
	"HOW TO WORK WITH THIS TABLE",
	"",
	"Each row is one person, each column a release. A cell is the share of the person's time spent on that release.",
	"Every row adds up to 100%. The DEFAULT column collects work that belongs to no release.",
	"Hover a cell to see the tasks behind it and any fixed management overhead.",
	"Yellow names need attention: the person had no tasks, or the name is missing from the names reference.",
	"Fix the tasks in the tracker, update the draft and regenerate the report instead of editing numbers here.",
}

// Excel renders a report sheet with excelize. It implements matrix.Renderer.
type Excel struct {
	f     *excelize.File
	sheet string

	percentStyle   int
	zeroStyle      int
	highlightStyle int

	widths map[int]int
}

var _ matrix.Renderer = (*Excel)(nil)

// NewExcel creates a workbook with one report sheet named after the period.
func NewExcel(from, to string) (*Excel, error) {
	f := excelize.NewFile()
	sheet := fmt.Sprintf("%s - %s", from, to)

	err := f.SetSheetName("Sheet1", sheet)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("name sheet: %w", err)
	}

	e := &Excel{f: f, sheet: sheet, widths: map[int]int{}}

	e.percentStyle, err = f.NewStyle(&excelize.Style{NumFmt: percentFormat})
	if err == nil {
		e.zeroStyle, err = f.NewStyle(&excelize.Style{
			NumFmt: percentFormat,
			Font:   &excelize.Font{Color: zeroFontRGB},
		})
	}

	if err == nil {
		e.highlightStyle, err = f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{highlightRGB}, Pattern: 1},
		})
	}

	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("create styles: %w", err)
	}

	return e, nil
}

func (e *Excel) cell(col, row int) (string, error) {
	return excelize.CoordinatesToCellName(col+1, row+1)
}

func (e *Excel) track(col int, value string) {
	if n := utf8.RuneCountInString(value); n > e.widths[col] {
		e.widths[col] = n
	}
}

func (e *Excel) WriteCell(col, row int, value string) error {
	name, err := e.cell(col, row)
	if err != nil {
		return err
	}

	e.track(col, value)

	return e.f.SetCellStr(e.sheet, name, value)
}

func (e *Excel) WritePercentage(col, row int, fraction float64) error {
	name, err := e.cell(col, row)
	if err != nil {
		return err
	}

	err = e.f.SetCellFloat(e.sheet, name, fraction, -1, 64)
	if err != nil {
		return err
	}

	style := e.percentStyle
	if fraction == 0 {
		style = e.zeroStyle
	}

	return e.f.SetCellStyle(e.sheet, name, name, style)
}

func (e *Excel) WriteHighlighted(col, row int, value string) error {
	err := e.WriteCell(col, row, value)
	if err != nil {
		return err
	}

	name, err := e.cell(col, row)
	if err != nil {
		return err
	}

	return e.f.SetCellStyle(e.sheet, name, name, e.highlightStyle)
}

func (e *Excel) WriteComment(col, row int, text string) error {
	name, err := e.cell(col, row)
	if err != nil {
		return err
	}

	return e.f.AddComment(e.sheet, excelize.Comment{
		Cell:      name,
		Author:    commentAuthor,
		Paragraph: []excelize.RichTextRun{{Text: text}},
	})
}

// Finish sizes columns, freezes the header row and name column, and appends
// the help sheet. Call it once after rendering.
func (e *Excel) Finish() error {
	for col, width := range e.widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}

		err = e.f.SetColWidth(e.sheet, name, name, float64(min(width+2, maxColWidth)))
		if err != nil {
			return fmt.Errorf("set width of %s: %w", name, err)
		}
	}

	err := e.f.SetPanes(e.sheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	})
	if err != nil {
		return fmt.Errorf("freeze panes: %w", err)
	}

	_, err = e.f.NewSheet(helpSheet)
	if err != nil {
		return fmt.Errorf("add help sheet: %w", err)
	}

	for i, line := range helpLines {
		err = e.f.SetCellStr(helpSheet, fmt.Sprintf("A%d", i+1), line)
		if err != nil {
			return err
		}
	}

	return nil
}

// Bytes serializes the workbook.
func (e *Excel) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	_, err := e.f.WriteTo(&buf)
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	return buf.Bytes(), nil
}

// Close releases the workbook.
func (e *Excel) Close() error {
	return e.f.Close()
}

// Spreadsheet renders m into a finished workbook and returns its bytes.
func Spreadsheet(m *matrix.Matrix, spend *matrix.SpendModel, from, to string) ([]byte, error) {
	x, err := NewExcel(from, to)
	if err != nil {
		return nil, err
	}
	defer x.Close()

	err = matrix.Render(x, m, spend)
	if err != nil {
		return nil, fmt.Errorf("render spreadsheet: %w", err)
	}

	err = x.Finish()
	if err != nil {
		return nil, err
	}

	return x.Bytes()
}
