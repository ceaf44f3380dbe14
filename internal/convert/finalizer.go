package convert

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ErrorSheetName is the name of the trailing sheet listing problem rows.
const ErrorSheetName = "Errors"

// errorSheetHeader is the header row of the Errors sheet. Row Number is the
// physical input line. The trailing "further errors not recorded" summary
// written when MaxErrorRows is exceeded has no line and leaves it blank.
var errorSheetHeader = []string{"Row Number", "Raw Row", "Error"}

// defaultSheet is the sheet excelize.NewFile creates.
const defaultSheet = "Sheet1"

// Finalizer turns completed sheets and error records into an XLSX stream.
type Finalizer struct {
	maxWidth int
}

// NewFinalizer returns a finalizer capping column widths at maxWidth.
func NewFinalizer(maxWidth int) *Finalizer {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxColumnWidth
	}
	return &Finalizer{maxWidth: maxWidth}
}

// Finalize writes the workbook to w and returns the number of bytes written.
//
// Every sheet gets column widths of min(maxWidth, widest cell), a bold
// header and a pane frozen below the header. A non-empty errs list adds a
// final Errors sheet. On error nothing written to w should be used.
func (fz *Finalizer) Finalize(sheets []*Sheet, errs []ErrorRecord, w io.Writer) (int64, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, newError("finalize", ErrSerialization, fmt.Errorf("header style: %w", err))
	}

	for i, s := range sheets {
		if err := fz.addSheet(f, i == 0, s.Name); err != nil {
			return 0, err
		}
		sw, err := fz.startSheet(f, s.Name, s.Header, s.Widths, headerStyle)
		if err != nil {
			return 0, err
		}

		next := 2
		err = s.Replay(func(fields []string) error {
			values := make([]interface{}, len(fields))
			for j, v := range fields {
				values[j] = v
			}
			cell, err := excelize.CoordinatesToCellName(1, next)
			if err != nil {
				return err
			}
			next++
			return sw.SetRow(cell, values)
		})
		if err != nil {
			return 0, newError("finalize", ErrSerialization, fmt.Errorf("sheet %s: %w", s.Name, err))
		}
		if err := sw.Flush(); err != nil {
			return 0, newError("finalize", ErrSerialization, fmt.Errorf("flush %s: %w", s.Name, err))
		}
		s.release()
	}

	if len(errs) > 0 {
		if err := fz.writeErrorSheet(f, len(sheets) == 0, errs, headerStyle); err != nil {
			return 0, err
		}
	}

	f.SetActiveSheet(0)
	n, err := f.WriteTo(w)
	if err != nil {
		return n, newError("finalize", ErrSerialization, err)
	}
	return n, nil
}

// addSheet creates a sheet, reusing the default sheet for the first one.
func (fz *Finalizer) addSheet(f *excelize.File, first bool, name string) error {
	if first {
		if err := f.SetSheetName(defaultSheet, name); err != nil {
			return newError("finalize", ErrSerialization, fmt.Errorf("rename sheet %s: %w", name, err))
		}
		return nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return newError("finalize", ErrSerialization, fmt.Errorf("new sheet %s: %w", name, err))
	}
	return nil
}

// startSheet opens a stream writer and applies widths, frozen pane and the
// bold header. Stream writers require all of these before any data row.
func (fz *Finalizer) startSheet(f *excelize.File, name string, header []string, widths []int, headerStyle int) (*excelize.StreamWriter, error) {
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return nil, newError("finalize", ErrSerialization, fmt.Errorf("stream writer %s: %w", name, err))
	}

	for i, width := range widths {
		width = min(width, fz.maxWidth)
		if width == 0 {
			continue
		}
		if err := sw.SetColWidth(i+1, i+1, float64(width)); err != nil {
			return nil, newError("finalize", ErrSerialization, fmt.Errorf("column width %s: %w", name, err))
		}
	}

	if err := sw.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
		Selection: []excelize.Selection{
			{SQRef: "A2", ActiveCell: "A2", Pane: "bottomLeft"},
		},
	}); err != nil {
		return nil, newError("finalize", ErrSerialization, fmt.Errorf("freeze header %s: %w", name, err))
	}

	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return nil, newError("finalize", ErrSerialization, fmt.Errorf("header %s: %w", name, err))
	}
	return sw, nil
}

// writeErrorSheet appends the Errors sheet. It is never split; the
// collector's limit keeps it within one sheet.
func (fz *Finalizer) writeErrorSheet(f *excelize.File, first bool, errs []ErrorRecord, headerStyle int) error {
	widths := textWidths(errorSheetHeader)
	for _, rec := range errs {
		cols := [3]string{strconv.Itoa(rec.Row), rec.RawRow, rec.Message}
		for i, c := range textWidths(cols[:]) {
			widths[i] = max(widths[i], c)
		}
	}

	if err := fz.addSheet(f, first, ErrorSheetName); err != nil {
		return err
	}
	sw, err := fz.startSheet(f, ErrorSheetName, errorSheetHeader, widths, headerStyle)
	if err != nil {
		return err
	}

	for i, rec := range errs {
		var row interface{}
		if rec.Row > 0 {
			row = rec.Row
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return newError("finalize", ErrSerialization, err)
		}
		if err := sw.SetRow(cell, []interface{}{row, rec.RawRow, rec.Message}); err != nil {
			return newError("finalize", ErrSerialization, fmt.Errorf("errors row %d: %w", i+2, err))
		}
	}

	if err := sw.Flush(); err != nil {
		return newError("finalize", ErrSerialization, fmt.Errorf("flush %s: %w", ErrorSheetName, err))
	}
	return nil
}
