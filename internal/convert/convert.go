package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/csv2xlsx/internal/logging"
)

// Result summarises a successful conversion. FileSize is the size of the
// serialized workbook; InputSize counts raw input bytes.
type Result struct {
	ID                string        `json:"id"`
	DetectedDelimiter string        `json:"detected_delimiter"`
	Encoding          string        `json:"encoding"`
	InputSize         int64         `json:"input_size"`
	FileSize          int64         `json:"file_size"`
	Sheets            int           `json:"sheets"`
	DataRows          int           `json:"data_rows"`
	ErrorRows         int           `json:"error_rows"`
	Duration          time.Duration `json:"duration_ns"`
}

// Converter runs conversions. It holds only configuration, so one Converter
// may serve concurrent calls.
type Converter struct {
	opts      Options
	finalizer *Finalizer
}

// New returns a Converter; zero option fields take defaults.
func New(opts Options) *Converter {
	opts = opts.withDefaults()
	return &Converter{
		opts:      opts,
		finalizer: NewFinalizer(opts.MaxColumnWidth),
	}
}

// Options returns the effective options after defaults were applied.
func (c *Converter) Options() Options {
	return c.opts
}

// Convert streams req.Source into an XLSX workbook written to w.
//
// The source is read once and never seeked. On error the bytes already
// written to w are incomplete and must be discarded; the returned error is a
// *ConversionError whose Kind is one of the package sentinels.
func (c *Converter) Convert(ctx context.Context, req Request, w io.Writer) (*Result, error) {
	start := time.Now()
	id := uuid.NewString()
	logger := c.logger(ctx).With("conversion_id", id, "file", req.FileName)

	if req.Source == nil {
		return nil, newError("sample", ErrRead, errors.New("no input"))
	}
	if err := ctx.Err(); err != nil {
		return nil, newError("sample", ErrCancelled, err)
	}

	sample, truncated, err := c.readSample(req.Source)
	if err != nil {
		return nil, err
	}

	format, err := Detect(sample, truncated, req.Delimiter, req.Encoding)
	if err != nil {
		logger.Debug("detection failed", "error", err)
		return nil, err
	}
	logger.Debug("format detected",
		"delimiter", format.Label,
		"encoding", format.Encoding.String(),
		"sample_bytes", len(sample),
	)

	errs := NewCollector(c.opts.MaxErrorRows)
	dec := NewRowDecoder(io.MultiReader(bytes.NewReader(sample), req.Source), format, errs)
	dec.NoHeader = req.NoHeader
	dec.CheckInterval = c.opts.ContextCheckInterval
	defer dec.Close()

	header, err := dec.ReadHeader()
	if err != nil {
		return nil, err
	}
	if len(header) > excelize.MaxColumns {
		return nil, newError("write", ErrWrite,
			fmt.Errorf("%d columns exceeds the limit of %d", len(header), excelize.MaxColumns))
	}

	writer := NewSheetWriter(header, c.opts.MaxRowsPerSheet, c.opts.ScratchDir)
	defer writer.Discard()

	rows := 0
	for dec.Next(ctx) {
		if err := writer.Append(dec.Row()); err != nil {
			logger.Error("sheet append failed", "row", dec.Row().Number, "error", err)
			return nil, err
		}
		rows++
	}
	if err := dec.Err(); err != nil {
		logger.Warn("conversion stopped", "rows", rows, "error", err)
		return nil, err
	}

	sheets, err := writer.Close()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, newError("finalize", ErrCancelled, err)
	}

	errorRows := errs.Len()
	if errs.Dropped() > 0 {
		logger.Warn("error records truncated", "kept", errorRows-errs.Dropped(), "dropped", errs.Dropped())
	}

	written, err := c.finalizer.Finalize(sheets, errs.Drain(), w)
	if err != nil {
		logger.Error("workbook serialization failed", "error", err)
		return nil, err
	}

	res := &Result{
		ID:                id,
		DetectedDelimiter: format.Label,
		Encoding:          format.Encoding.String(),
		InputSize:         dec.BytesRead(),
		FileSize:          written,
		Sheets:            len(sheets),
		DataRows:          rows,
		ErrorRows:         errorRows,
		Duration:          time.Since(start),
	}

	logger.Info("conversion completed",
		"delimiter", res.DetectedDelimiter,
		"rows", res.DataRows,
		"sheets", res.Sheets,
		"errors", res.ErrorRows,
		"bytes_in", res.InputSize,
		"bytes_out", res.FileSize,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// readSample reads up to SampleSize bytes. truncated is true when the sample
// filled the buffer, i.e. more input may follow.
func (c *Converter) readSample(src io.Reader) ([]byte, bool, error) {
	buf := make([]byte, c.opts.SampleSize)
	n, err := io.ReadFull(src, buf)
	switch {
	case err == nil:
		return buf, true, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:n], false, nil
	default:
		return nil, false, newError("sample", ErrRead, err)
	}
}

func (c *Converter) logger(ctx context.Context) *slog.Logger {
	if c.opts.Logger != nil {
		return c.opts.Logger
	}
	return logging.FromContext(ctx)
}
