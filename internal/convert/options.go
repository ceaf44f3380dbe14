package convert

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Delimiter selects how fields are separated. The zero value is DelimiterAuto.
type Delimiter int

const (
	DelimiterAuto Delimiter = iota
	DelimiterComma
	DelimiterTab
	DelimiterSemicolon
	DelimiterPipe
)

// delimiterInfo holds the wire name, literal rune and display label of a delimiter.
type delimiterInfo struct {
	name  string
	char  rune
	label string
}

var delimiters = map[Delimiter]delimiterInfo{
	DelimiterAuto:      {name: "auto"},
	DelimiterComma:     {name: "comma", char: ',', label: "Comma"},
	DelimiterTab:       {name: "tab", char: '\t', label: "Tab"},
	DelimiterSemicolon: {name: "semicolon", char: ';', label: "Semicolon"},
	DelimiterPipe:      {name: "pipe", char: '|', label: "Pipe"},
}

// candidateOrder is the order candidates are considered during sniffing.
// Comma first: it wins ties.
var candidateOrder = []Delimiter{DelimiterComma, DelimiterTab, DelimiterSemicolon, DelimiterPipe}

// ParseDelimiter converts a form/flag value into a Delimiter.
// An empty string means auto.
func ParseDelimiter(s string) (Delimiter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DelimiterAuto, nil
	}
	for d, info := range delimiters {
		if info.name == s {
			return d, nil
		}
	}
	return DelimiterAuto, fmt.Errorf("%w: %q", ErrInvalidDelimiter, s)
}

// String returns the selector name ("auto", "comma", ...).
func (d Delimiter) String() string {
	if info, ok := delimiters[d]; ok {
		return info.name
	}
	return fmt.Sprintf("Delimiter(%d)", int(d))
}

// Rune returns the literal separator. It is zero for DelimiterAuto.
func (d Delimiter) Rune() rune {
	return delimiters[d].char
}

// Label returns the human-readable name used in responses ("Comma", "Tab", ...).
func (d Delimiter) Label() string {
	return delimiters[d].label
}

// Encoding selects the text encoding of the input.
// The zero value is EncodingUTF8.
type Encoding int

const (
	EncodingUTF8 Encoding = iota
	EncodingLatin1
	EncodingUTF16
)

var encodingNames = map[Encoding]string{
	EncodingUTF8:   "utf-8",
	EncodingLatin1: "latin-1",
	EncodingUTF16:  "utf-16",
}

// ParseEncoding converts a form/flag value into an Encoding.
// An empty string means utf-8.
func ParseEncoding(s string) (Encoding, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return EncodingUTF8, nil
	}
	for e, name := range encodingNames {
		if name == s {
			return e, nil
		}
	}
	return EncodingUTF8, fmt.Errorf("%w: %q", ErrInvalidEncoding, s)
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// Request is a single conversion input. The engine never mutates it.
type Request struct {
	Source    io.Reader
	Delimiter Delimiter
	Encoding  Encoding

	// FileName is only used for logging.
	FileName string

	// NoHeader makes the first row data and synthesises Column_N headers.
	NoHeader bool
}

const (
	// XLSXMaxRows is the per-sheet row ceiling of the XLSX format.
	XLSXMaxRows = 1048576

	// DefaultMaxRowsPerSheet leaves headroom below XLSXMaxRows for the header.
	DefaultMaxRowsPerSheet = 1000000

	// DefaultSampleSize is the number of bytes inspected by the detector.
	DefaultSampleSize = 64 * 1024

	// DefaultMaxColumnWidth caps computed column widths.
	DefaultMaxColumnWidth = 50

	// DefaultContextCheckInterval is how often (in rows) cancellation is checked.
	DefaultContextCheckInterval = 100

	// maxErrorRows reserves the header row and the overflow summary row.
	maxErrorRows = XLSXMaxRows - 2
)

// Options configures a Converter. Zero fields take defaults.
type Options struct {
	MaxRowsPerSheet      int
	SampleSize           int
	MaxColumnWidth       int
	ContextCheckInterval int

	// MaxErrorRows caps recorded errors so the Errors sheet, which is never
	// split, fits in one sheet with its header and overflow summary row.
	MaxErrorRows int

	// ScratchDir holds per-sheet spill files. Defaults to os.TempDir().
	ScratchDir string

	Logger *slog.Logger
}

// withDefaults returns a copy of o with zero values replaced.
func (o Options) withDefaults() Options {
	if o.MaxRowsPerSheet <= 0 {
		o.MaxRowsPerSheet = DefaultMaxRowsPerSheet
	}
	if o.MaxRowsPerSheet > XLSXMaxRows-1 {
		o.MaxRowsPerSheet = XLSXMaxRows - 1
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.MaxColumnWidth <= 0 {
		o.MaxColumnWidth = DefaultMaxColumnWidth
	}
	if o.ContextCheckInterval <= 0 {
		o.ContextCheckInterval = DefaultContextCheckInterval
	}
	if o.MaxErrorRows <= 0 || o.MaxErrorRows > maxErrorRows {
		o.MaxErrorRows = maxErrorRows
	}
	if o.ScratchDir == "" {
		o.ScratchDir = os.TempDir()
	}
	return o
}
