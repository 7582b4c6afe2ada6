// Package spreadsheet writes table rows into XLSX workbooks.
package spreadsheet

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/feichai0017/sheetscan/internal/models"
)

var (
	ErrNoSheets         = errors.New("workbook needs at least one sheet")
	ErrInvalidSheetName = errors.New("invalid sheet name")
	ErrDuplicateSheet   = errors.New("duplicate sheet name")
)

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet is one worksheet. Writer keeps the slice order.
type Sheet struct {
	Name string
	Rows models.TableData
}

// Writer renders sheets as an XLSX workbook. Every cell is written as a string so
// values like "007" or "1,200" survive unchanged.
type Writer struct {
	// ColumnWidth sets the width of every used column; zero keeps the default.
	ColumnWidth float64
}

func NewWriter() *Writer {
	return &Writer{ColumnWidth: 20}
}

// Write rejects invalid or duplicate names instead of fixing them; use SheetNamer first.
// Cells that would not read back unchanged fail with ErrUnstorableCell; use CleanRows first.
func (w *Writer) Write(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	seen := make(map[string]struct{}, len(sheets))
	for _, s := range sheets {
		if err := ValidateSheetName(s.Name); err != nil {
			return nil, err
		}
		key := strings.ToLower(s.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSheet, s.Name)
		}
		seen[key] = struct{}{}
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return nil, fmt.Errorf("rename sheet %q: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", s.Name, err)
		}
		if err := w.writeRows(f, s); err != nil {
			return nil, err
		}
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *Writer) writeRows(f *excelize.File, s Sheet) error {
	for r, row := range s.Rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := CheckCell(value); err != nil {
				return fmt.Errorf("write %s!%s: %w", s.Name, cell, err)
			}
			if err := f.SetCellStr(s.Name, cell, value); err != nil {
				return fmt.Errorf("write %s!%s: %w", s.Name, cell, err)
			}
		}
	}

	if cols := s.Rows.Columns(); cols > 0 && w.ColumnWidth > 0 {
		last, err := excelize.ColumnNumberToName(cols)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(s.Name, "A", last, w.ColumnWidth); err != nil {
			return fmt.Errorf("set column width on %s: %w", s.Name, err)
		}
	}
	return nil
}

// Read parses a workbook back into sheets, in workbook order.
func Read(data []byte) ([]Sheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsx open: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		table := make(models.TableData, len(rows))
		for i, row := range rows {
			table[i] = models.TableRow(row)
		}
		sheets = append(sheets, Sheet{Name: name, Rows: table})
	}
	return sheets, nil
}
