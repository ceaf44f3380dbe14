package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/csv2xlsx/internal/convert"
	"github.com/JonMunkholm/csv2xlsx/internal/logging"
	"github.com/JonMunkholm/csv2xlsx/internal/storage"
)

// DefaultConvertTimeout bounds a single conversion.
const DefaultConvertTimeout = 10 * time.Minute

// ServiceConfig configures a Service. Zero values take defaults.
type ServiceConfig struct {
	Convert        convert.Options
	MaxConcurrent  int
	MaxWait        time.Duration
	ConvertTimeout time.Duration
}

// Service converts uploads into stored workbooks and serves them back.
type Service struct {
	converter *convert.Converter
	store     *storage.Store
	limiter   *UploadLimiter
	timeout   time.Duration
}

// NewService creates a Service writing artifacts to store.
func NewService(store *storage.Store, cfg ServiceConfig) *Service {
	if cfg.ConvertTimeout <= 0 {
		cfg.ConvertTimeout = DefaultConvertTimeout
	}
	return &Service{
		converter: convert.New(cfg.Convert),
		store:     store,
		limiter:   NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		timeout:   cfg.ConvertTimeout,
	}
}

// ConvertRequest is one upload. Delimiter and Encoding are the raw selector
// values from the form or command line; empty means the default.
type ConvertRequest struct {
	FileName  string
	Source    io.Reader
	Delimiter string
	Encoding  string
	NoHeader  bool
}

// ConvertResult describes a stored conversion.
type ConvertResult struct {
	convert.Result

	// FileName is the stored artifact name, used in the download URL.
	FileName string `json:"file_name"`
}

// Convert validates the selectors, waits for a limiter slot and converts the
// upload into a new stored artifact. A failed or cancelled conversion leaves
// nothing in storage.
func (s *Service) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	delim, err := convert.ParseDelimiter(req.Delimiter)
	if err != nil {
		return nil, err
	}
	enc, err := convert.ParseEncoding(req.Encoding)
	if err != nil {
		return nil, err
	}

	logger := logging.WithFields(ctx, "file", req.FileName)

	if err := s.limiter.Acquire(ctx); err != nil {
		logger.Warn("conversion rejected", "error", err, "active", s.limiter.ActiveCount())
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var res *convert.Result
	name, err := s.store.Save(func(w io.Writer) error {
		var err error
		res, err = s.converter.Convert(ctx, convert.Request{
			Source:    req.Source,
			Delimiter: delim,
			Encoding:  enc,
			FileName:  req.FileName,
			NoHeader:  req.NoHeader,
		}, w)
		return err
	})
	if err != nil {
		var ce *convert.ConversionError
		if !errors.As(err, &ce) {
			err = fmt.Errorf("store workbook: %w", err)
		}
		return nil, err
	}

	logger.Info("workbook stored", "artifact", name, "conversion_id", res.ID)
	return &ConvertResult{Result: *res, FileName: name}, nil
}

// OpenDownload returns a stored artifact and its size. The caller closes it.
func (s *Service) OpenDownload(name string) (io.ReadCloser, int64, error) {
	f, size, err := s.store.Open(name)
	if err != nil {
		return nil, 0, err
	}
	return f, size, nil
}

// RemoveDownload deletes a served artifact.
func (s *Service) RemoveDownload(name string) error {
	return s.store.Remove(name)
}

// Sweep deletes artifacts older than maxAge.
func (s *Service) Sweep(maxAge time.Duration) (int, error) {
	return s.store.Sweep(maxAge)
}

// UploadLimiterStatus reports the concurrency limiter state.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForConversions blocks until in-flight conversions finish or ctx ends.
func (s *Service) WaitForConversions(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
