package convert

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// maxSniffLines bounds how many non-empty sample lines auto-detection inspects.
const maxSniffLines = 20

// Format is the delimiter and encoding chosen for one request.
type Format struct {
	Delimiter rune
	Label     string
	Encoding  Encoding
}

// Detect validates the detection sample in the requested encoding and picks a
// delimiter. truncated reports whether the sample is a strict prefix of the
// input, in which case a partial trailing character or line is tolerated.
//
// Detect is a pure function over the sample.
func Detect(sample []byte, truncated bool, delim Delimiter, enc Encoding) (Format, error) {
	if len(sample) == 0 {
		return Format{}, newError("detect", ErrEmptyFile, nil)
	}
	if _, ok := delimiters[delim]; !ok {
		return Format{}, newError("detect", ErrInvalidDelimiter, fmt.Errorf("%v", delim))
	}
	if _, ok := encodingNames[enc]; !ok {
		return Format{}, newError("detect", ErrInvalidEncoding, fmt.Errorf("%v", enc))
	}

	clean, err := validateSample(sample, truncated, enc)
	if err != nil {
		return Format{}, newError("detect", ErrEncoding, err)
	}

	if delim == DelimiterAuto {
		text, err := decoderFor(enc).Bytes(clean)
		if err != nil {
			return Format{}, newError("detect", ErrEncoding, err)
		}
		delim = sniffDelimiter(string(text), truncated)
	}

	return Format{
		Delimiter: delim.Rune(),
		Label:     delim.Label(),
		Encoding:  enc,
	}, nil
}

// validateSample checks sample strictly and returns the prefix that holds
// only complete characters.
func validateSample(sample []byte, truncated bool, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingLatin1:
		return sample, nil
	case EncodingUTF16:
		return validateUTF16(sample, truncated)
	default:
		data := sample
		if truncated {
			data = data[:len(data)-incompleteTrailingBytes(data)]
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("invalid utf-8 sequence at byte %d", firstInvalidUTF8(data))
		}
		return data, nil
	}
}

func firstInvalidUTF8(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// validateUTF16 checks code unit pairing. A BOM selects byte order,
// little-endian otherwise.
func validateUTF16(sample []byte, truncated bool) ([]byte, error) {
	data := sample
	bigEndian := false
	offset := 0
	if len(data) >= 2 {
		switch {
		case data[0] == 0xFE && data[1] == 0xFF:
			bigEndian, offset = true, 2
		case data[0] == 0xFF && data[1] == 0xFE:
			offset = 2
		}
	}

	if (len(data)-offset)%2 != 0 {
		if !truncated {
			return nil, fmt.Errorf("odd utf-16 byte length %d", len(data))
		}
		data = data[:len(data)-1]
	}

	unit := func(i int) uint16 {
		if bigEndian {
			return uint16(data[i])<<8 | uint16(data[i+1])
		}
		return uint16(data[i+1])<<8 | uint16(data[i])
	}

	for i := offset; i < len(data); i += 2 {
		u := unit(i)
		switch {
		case u >= 0xDC00 && u <= 0xDFFF:
			return nil, fmt.Errorf("unpaired utf-16 low surrogate at byte %d", i)
		case utf16.IsSurrogate(rune(u)):
			if i+2 >= len(data) {
				if truncated {
					return data[:i], nil
				}
				return nil, fmt.Errorf("unpaired utf-16 high surrogate at byte %d", i)
			}
			next := unit(i + 2)
			if next < 0xDC00 || next > 0xDFFF {
				return nil, fmt.Errorf("unpaired utf-16 high surrogate at byte %d", i)
			}
			i += 2
		}
	}
	return data, nil
}

// delimiterStats summarises one candidate's per-line occurrence counts.
type delimiterStats struct {
	delim    Delimiter
	mean     float64
	variance float64
}

// sniffDelimiter picks the candidate whose per-line count is most consistent.
//
// A candidate must occur on more than half of the sampled lines. Ties on
// variance go to comma when comma is tied, then to the higher mean count,
// then to candidateOrder. No qualifying candidate means comma.
func sniffDelimiter(text string, truncated bool) Delimiter {
	lines := sampleLines(text, truncated)
	if len(lines) == 0 {
		return DelimiterComma
	}

	var stats []delimiterStats
	for _, d := range candidateOrder {
		counts := make([]int, len(lines))
		present := 0
		for i, line := range lines {
			counts[i] = countOutsideQuotes(line, d.Rune())
			if counts[i] > 0 {
				present++
			}
		}
		if present*2 <= len(lines) {
			continue
		}
		mean, variance := meanVariance(counts)
		stats = append(stats, delimiterStats{delim: d, mean: mean, variance: variance})
	}
	if len(stats) == 0 {
		return DelimiterComma
	}

	minVar := math.Inf(1)
	for _, s := range stats {
		minVar = math.Min(minVar, s.variance)
	}

	var best *delimiterStats
	for i := range stats {
		s := &stats[i]
		if s.variance-minVar > 1e-9 {
			continue
		}
		if s.delim == DelimiterComma {
			return DelimiterComma
		}
		if best == nil || s.mean > best.mean {
			best = s
		}
	}
	return best.delim
}

// sampleLines returns up to maxSniffLines non-empty lines. A truncated
// sample's final line may be partial, so it is dropped.
func sampleLines(text string, truncated bool) []string {
	raw := strings.Split(text, "\n")
	if truncated && len(raw) > 1 {
		raw = raw[:len(raw)-1]
	}

	lines := make([]string, 0, maxSniffLines)
	for _, line := range raw {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == maxSniffLines {
			break
		}
	}
	return lines
}

// countOutsideQuotes counts c in line, ignoring double-quoted sections.
func countOutsideQuotes(line string, c rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == c && !quoted:
			n++
		}
	}
	return n
}

func meanVariance(counts []int) (float64, float64) {
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	mean := sum / float64(len(counts))

	var sq float64
	for _, c := range counts {
		d := float64(c) - mean
		sq += d * d
	}
	return mean, sq / float64(len(counts))
}
