package convert

// streaming.go provides the byte-level readers in front of the CSV parser.
//
// Input is never loaded whole. The source is wrapped, in order, by:
//
//   - CountingReader: tracks raw bytes consumed for logging
//   - an x/text decoder: converts the selected encoding to UTF-8, replacing
//     undecodable sequences with U+FFFD and dropping a leading BOM
//
// Use WrapForStreaming to apply both in the correct order.

import (
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader creates a counting reader.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// decoderFor returns a lenient decoder to UTF-8 for enc.
//
// utf-8 strips a BOM and substitutes invalid bytes, latin-1 maps every byte,
// utf-16 honours a BOM and defaults to little-endian.
func decoderFor(enc Encoding) *encoding.Decoder {
	switch enc {
	case EncodingLatin1:
		return charmap.ISO8859_1.NewDecoder()
	case EncodingUTF16:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	default:
		return unicode.UTF8BOM.NewDecoder()
	}
}

// WrapForStreaming wraps r with byte counting and decoding to UTF-8.
// The counter sees raw input bytes; the returned reader yields UTF-8.
func WrapForStreaming(r io.Reader, enc Encoding) (*CountingReader, io.Reader) {
	counter := NewCountingReader(r)
	return counter, transform.NewReader(counter, decoderFor(enc))
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Not a continuation byte: nothing pending
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with byte b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0 // continuation byte
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return utf8.UTFMax
	}
}
