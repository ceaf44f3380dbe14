package convert

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
)

// RawRow is one parsed record. Number is the 1-based physical line the record
// starts on, so the header is row 1 and skipped blank lines still count.
type RawRow struct {
	Number int
	Fields []string
}

// RowDecoder yields the data rows of a delimited text stream.
//
// It is a single-pass, forward-only iterator in the style of bufio.Scanner:
//
//	for dec.Next(ctx) {
//	    row := dec.Row()
//	}
//	if err := dec.Err(); err != nil { ... }
//
// Rows whose width differs from the header are still yielded; the mismatch
// is recorded in the Collector. Close stops iteration early.
type RowDecoder struct {
	// NoHeader treats the first record as data and names columns Column_N.
	// Set before the first call to ReadHeader or Next.
	NoHeader bool

	// CheckInterval is how many rows pass between context checks.
	CheckInterval int

	reader  *csv.Reader
	counter *CountingReader
	errs    *Collector
	sep     string

	header  []string
	pending *RawRow
	row     RawRow
	line    int
	yielded int
	err     error
	done    bool
}

// NewRowDecoder decodes src with the detected format. Decode failures of
// individual rows go to errs.
func NewRowDecoder(src io.Reader, f Format, errs *Collector) *RowDecoder {
	counter, text := WrapForStreaming(src, f.Encoding)

	r := csv.NewReader(text)
	r.Comma = f.Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	return &RowDecoder{
		CheckInterval: DefaultContextCheckInterval,
		reader:        r,
		counter:       counter,
		errs:          errs,
		sep:           string(f.Delimiter),
	}
}

// ReadHeader consumes the header record if it has not been read yet.
// An input without any record fails with ErrEmptyFile.
func (d *RowDecoder) ReadHeader() ([]string, error) {
	if d.header != nil {
		return d.header, nil
	}
	if d.err != nil {
		return nil, d.err
	}

	rec, ok := d.read()
	if !ok {
		if d.err == nil {
			d.err = newError("decode", ErrEmptyFile, nil)
		}
		d.done = true
		return nil, d.err
	}

	header := make([]string, len(rec))
	if d.NoHeader {
		fields := make([]string, len(rec))
		copy(fields, rec)
		for i := range header {
			header[i] = "Column_" + strconv.Itoa(i+1)
		}
		d.pending = &RawRow{Number: d.line, Fields: fields}
	} else {
		for i, h := range rec {
			header[i] = strings.TrimSpace(h)
		}
	}
	d.header = header
	return d.header, nil
}

// Header returns the header, or nil before ReadHeader succeeds.
func (d *RowDecoder) Header() []string {
	return d.header
}

// Next advances to the next data row. It returns false at end of input,
// on a fatal error, after cancellation or after Close.
func (d *RowDecoder) Next(ctx context.Context) bool {
	if d.done {
		return false
	}
	if d.header == nil {
		if _, err := d.ReadHeader(); err != nil {
			return false
		}
	}

	if d.CheckInterval > 0 && d.yielded%d.CheckInterval == 0 {
		if err := ctx.Err(); err != nil {
			d.err = newError("decode", ErrCancelled, err)
			d.done = true
			return false
		}
	}

	if d.pending != nil {
		d.row = *d.pending
		d.pending = nil
	} else {
		rec, ok := d.read()
		if !ok {
			d.done = true
			return false
		}
		d.row = RawRow{Number: d.line, Fields: rec}
	}

	if len(d.row.Fields) != len(d.header) {
		d.errs.Record(d.row.Number, d.rawRow(d.row.Fields), shapeMessage(len(d.header), len(d.row.Fields)))
	}
	d.yielded++
	return true
}

// read returns the next record and sets d.line to the line it starts on.
// Parse errors are recorded and the partial record is still returned; any
// other error is fatal.
func (d *RowDecoder) read() ([]string, bool) {
	rec, err := d.reader.Read()
	if err == io.EOF {
		return nil, false
	}

	if err != nil {
		var pe *csv.ParseError
		if !errors.As(err, &pe) {
			d.err = newError("decode", ErrRead, err)
			return nil, false
		}
		d.line = pe.StartLine
		d.errs.Record(d.line, d.rawRow(rec), "decode error: "+pe.Err.Error())
		return rec, true
	}

	d.line, _ = d.reader.FieldPos(0)
	return rec, true
}

// Row returns the current row. Its Fields are only valid until the next
// call to Next.
func (d *RowDecoder) Row() RawRow {
	return d.row
}

// Err returns the first fatal error, if any. End of input is not an error.
func (d *RowDecoder) Err() error {
	return d.err
}

// BytesRead returns the number of raw input bytes consumed so far.
func (d *RowDecoder) BytesRead() int64 {
	return d.counter.BytesRead
}

// Close ends iteration. Later calls to Next return false.
func (d *RowDecoder) Close() {
	d.done = true
}

func (d *RowDecoder) rawRow(fields []string) string {
	return strings.Join(fields, d.sep)
}
