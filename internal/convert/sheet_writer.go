package convert

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

// Sheet is a data sheet whose rows are spilled to a scratch file until the
// workbook is finalized. Widths holds the widest cell per column in runes,
// header included.
type Sheet struct {
	Name     string
	Header   []string
	RowCount int
	Widths   []int

	spill *os.File
}

// Replay calls fn with each spilled row in write order. The slice passed to
// fn is not reused.
func (s *Sheet) Replay(fn func(fields []string) error) error {
	if s.spill == nil || s.RowCount == 0 {
		return nil
	}
	if _, err := s.spill.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", s.Name, err)
	}

	dec := gob.NewDecoder(bufio.NewReader(s.spill))
	for i := 0; i < s.RowCount; i++ {
		var fields []string
		if err := dec.Decode(&fields); err != nil {
			return fmt.Errorf("read %s row %d: %w", s.Name, i+1, err)
		}
		if err := fn(fields); err != nil {
			return err
		}
	}
	return nil
}

// release closes and removes the spill file. Safe to call more than once.
func (s *Sheet) release() {
	if s.spill == nil {
		return
	}
	name := s.spill.Name()
	_ = s.spill.Close()
	_ = os.Remove(name)
	s.spill = nil
}

type writerState int

const (
	stateNoSheet writerState = iota
	stateActive
	stateClosed
)

// SheetWriter partitions rows into sheets of at most maxRows data rows.
//
// Each sheet carries the same header. Rows narrower than the header are
// padded with empty cells and wider rows are truncated, so every sheet is
// rectangular; the original row is preserved in the Errors sheet.
type SheetWriter struct {
	header  []string
	maxRows int
	dir     string

	state   writerState
	current *Sheet
	buf     *bufio.Writer
	enc     *gob.Encoder
	sheets  []*Sheet
	scratch []string
}

// NewSheetWriter creates a writer whose spill files live in dir.
func NewSheetWriter(header []string, maxRows int, dir string) *SheetWriter {
	if maxRows <= 0 {
		maxRows = DefaultMaxRowsPerSheet
	}
	return &SheetWriter{
		header:  header,
		maxRows: maxRows,
		dir:     dir,
		scratch: make([]string, len(header)),
	}
}

// Append writes one row, starting a new sheet when the current one is full.
// Any failure is fatal for the conversion.
func (w *SheetWriter) Append(row RawRow) error {
	switch w.state {
	case stateClosed:
		return newError("write", ErrWrite, errors.New("sheet writer is closed"))
	case stateNoSheet:
		if err := w.openSheet(); err != nil {
			return err
		}
	case stateActive:
		if w.current.RowCount == w.maxRows {
			if err := w.finishSheet(); err != nil {
				return err
			}
			if err := w.openSheet(); err != nil {
				return err
			}
		}
	}

	fields := w.fit(row.Fields)
	if err := w.enc.Encode(fields); err != nil {
		return newError("write", ErrWrite, fmt.Errorf("%s row %d: %w", w.current.Name, row.Number, err))
	}

	widths := w.current.Widths
	for i, f := range fields {
		if n := utf8.RuneCountInString(f); n > widths[i] {
			widths[i] = n
		}
	}
	w.current.RowCount++
	return nil
}

// fit pads or truncates fields to the header width.
func (w *SheetWriter) fit(fields []string) []string {
	if len(fields) == len(w.header) {
		return fields
	}
	n := copy(w.scratch, fields)
	for i := n; i < len(w.scratch); i++ {
		w.scratch[i] = ""
	}
	return w.scratch
}

func (w *SheetWriter) openSheet() error {
	f, err := os.CreateTemp(w.dir, "csv2xlsx-*.spill")
	if err != nil {
		return newError("write", ErrWrite, fmt.Errorf("create spill: %w", err))
	}

	w.current = &Sheet{
		Name:   fmt.Sprintf("Sheet_%d", len(w.sheets)+1),
		Header: w.header,
		Widths: textWidths(w.header),
		spill:  f,
	}
	w.buf = bufio.NewWriter(f)
	w.enc = gob.NewEncoder(w.buf)
	w.state = stateActive
	return nil
}

// finishSheet flushes the current sheet; it is never appended to again.
func (w *SheetWriter) finishSheet() error {
	if err := w.buf.Flush(); err != nil {
		return newError("write", ErrWrite, fmt.Errorf("flush %s: %w", w.current.Name, err))
	}
	w.sheets = append(w.sheets, w.current)
	w.current, w.buf, w.enc = nil, nil, nil
	return nil
}

// Close finalizes the current sheet and returns all sheets in order. A
// header-only input still yields one empty Sheet_1.
func (w *SheetWriter) Close() ([]*Sheet, error) {
	switch w.state {
	case stateClosed:
		return w.sheets, nil
	case stateActive:
		if err := w.finishSheet(); err != nil {
			return nil, err
		}
	case stateNoSheet:
		w.sheets = append(w.sheets, &Sheet{Name: "Sheet_1", Header: w.header, Widths: textWidths(w.header)})
	}
	w.state = stateClosed
	return w.sheets, nil
}

// Discard removes every spill file. The writer is unusable afterwards.
func (w *SheetWriter) Discard() {
	if w.current != nil {
		w.current.release()
	}
	for _, s := range w.sheets {
		s.release()
	}
	w.state = stateClosed
}

// textWidths returns the rune length of each cell.
func textWidths(cells []string) []int {
	widths := make([]int, len(cells))
	for i, c := range cells {
		widths[i] = utf8.RuneCountInString(c)
	}
	return widths
}
