package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// convertString runs a conversion of input with opts and returns the
// produced workbook.
func convertString(t *testing.T, opts Options, req Request, input string) (*Result, *excelize.File) {
	t.Helper()
	if req.Source == nil {
		req.Source = strings.NewReader(input)
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = t.TempDir()
	}

	var buf bytes.Buffer
	res, err := New(opts).Convert(context.Background(), req, &buf)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if res.FileSize != int64(buf.Len()) {
		t.Errorf("FileSize = %d, written %d", res.FileSize, buf.Len())
	}
	return res, openWorkbook(t, buf.Bytes())
}

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func cell(t *testing.T, f *excelize.File, sheet, ref string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, ref)
	if err != nil {
		t.Fatalf("GetCellValue(%s!%s) error = %v", sheet, ref, err)
	}
	return v
}

func TestConvert_MismatchedRows(t *testing.T) {
	res, f := convertString(t, Options{}, Request{FileName: "data.csv"}, "a,b,c\n1,2,3\n4,5\n6,7,8,9\n")

	if res.DetectedDelimiter != "Comma" {
		t.Errorf("DetectedDelimiter = %q, want Comma", res.DetectedDelimiter)
	}
	if res.DataRows != 3 || res.ErrorRows != 2 || res.Sheets != 1 {
		t.Errorf("result = %+v, want 3 data rows, 2 error rows, 1 sheet", res)
	}
	if res.InputSize != int64(len("a,b,c\n1,2,3\n4,5\n6,7,8,9\n")) {
		t.Errorf("InputSize = %d", res.InputSize)
	}

	if got, want := f.GetSheetList(), []string{"Sheet_1", "Errors"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}

	wantData := map[string]string{
		"A1": "a", "B1": "b", "C1": "c",
		"A2": "1", "B2": "2", "C2": "3",
		"A3": "4", "B3": "5", "C3": "",
		"A4": "6", "B4": "7", "C4": "8", "D4": "",
		"A5": "",
	}
	for ref, want := range wantData {
		if got := cell(t, f, "Sheet_1", ref); got != want {
			t.Errorf("Sheet_1!%s = %q, want %q", ref, got, want)
		}
	}

	wantErrs := map[string]string{
		"A1": "Row Number", "B1": "Raw Row", "C1": "Error",
		"A2": "3", "B2": "4,5", "C2": "column count mismatch: expected 3 got 2",
		"A3": "4", "B3": "6,7,8,9", "C3": "column count mismatch: expected 3 got 4",
		"A4": "",
	}
	for ref, want := range wantErrs {
		if got := cell(t, f, ErrorSheetName, ref); got != want {
			t.Errorf("Errors!%s = %q, want %q", ref, got, want)
		}
	}
}

func TestConvert_ErrorRowNumbers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantRow []string
	}{
		{"blank lines", "a,b\n\n1\n1,2\n\n\n3\n", []string{"3", "7"}},
		{"quoted multi-line field", "a,b\n\"x\ny\",2\n3\n\"p\nq\nr\"\n", []string{"4", "5"}},
		{"crlf with blank line", "a,b\r\n\r\n1\r\n", []string{"3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, f := convertString(t, Options{}, Request{Delimiter: DelimiterComma}, tt.input)
			if res.ErrorRows != len(tt.wantRow) {
				t.Fatalf("ErrorRows = %d, want %d", res.ErrorRows, len(tt.wantRow))
			}
			for i, want := range tt.wantRow {
				ref := fmt.Sprintf("A%d", i+2)
				if got := cell(t, f, ErrorSheetName, ref); got != want {
					t.Errorf("Errors!%s = %q, want %q", ref, got, want)
				}
			}
		})
	}
}

func TestConvert_NoErrorsSheetWhenClean(t *testing.T) {
	res, f := convertString(t, Options{}, Request{}, "a;b\n1;2\n3;4\n")

	if res.ErrorRows != 0 {
		t.Errorf("ErrorRows = %d, want 0", res.ErrorRows)
	}
	if got, want := f.GetSheetList(), []string{"Sheet_1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("sheets = %v, want %v", got, want)
	}
}

func TestConvert_Formatting(t *testing.T) {
	long := strings.Repeat("x", 70)
	input := "id,description,\n12345," + long + ",\n"
	_, f := convertString(t, Options{}, Request{}, input)

	tests := []struct {
		col  string
		want float64
	}{
		{"A", 5},
		{"B", 50},
	}
	for _, tt := range tests {
		got, err := f.GetColWidth("Sheet_1", tt.col)
		if err != nil {
			t.Fatalf("GetColWidth(%s) error = %v", tt.col, err)
		}
		if got != tt.want {
			t.Errorf("column %s width = %v, want %v", tt.col, got, tt.want)
		}
	}

	panes, err := f.GetPanes("Sheet_1")
	if err != nil {
		t.Fatalf("GetPanes() error = %v", err)
	}
	if !panes.Freeze || panes.YSplit != 1 || panes.TopLeftCell != "A2" {
		t.Errorf("panes = %+v, want frozen at A2", panes)
	}

	for _, ref := range []string{"A1", "B1"} {
		styleID, err := f.GetCellStyle("Sheet_1", ref)
		if err != nil {
			t.Fatalf("GetCellStyle(%s) error = %v", ref, err)
		}
		style, err := f.GetStyle(styleID)
		if err != nil {
			t.Fatalf("GetStyle(%d) error = %v", styleID, err)
		}
		if style.Font == nil || !style.Font.Bold {
			t.Errorf("header cell %s is not bold", ref)
		}
	}

	styleID, err := f.GetCellStyle("Sheet_1", "A2")
	if err != nil {
		t.Fatalf("GetCellStyle(A2) error = %v", err)
	}
	if style, err := f.GetStyle(styleID); err == nil && style.Font != nil && style.Font.Bold {
		t.Error("data cell A2 is bold")
	}

	if got := cell(t, f, "Sheet_1", "B2"); got != long {
		t.Errorf("long cell truncated: got %d chars", len(got))
	}
}

func TestConvert_ErrorsSheetFormatting(t *testing.T) {
	_, f := convertString(t, Options{}, Request{}, "a,b\n1\n")

	panes, err := f.GetPanes(ErrorSheetName)
	if err != nil {
		t.Fatalf("GetPanes() error = %v", err)
	}
	if !panes.Freeze || panes.TopLeftCell != "A2" {
		t.Errorf("Errors panes = %+v, want frozen at A2", panes)
	}

	width, err := f.GetColWidth(ErrorSheetName, "C")
	if err != nil {
		t.Fatalf("GetColWidth() error = %v", err)
	}
	if want := float64(len("column count mismatch: expected 2 got 1")); width != want {
		t.Errorf("Errors column C width = %v, want %v", width, want)
	}
}

func TestConvert_SheetRollover(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id,value\n")
	for i := 1; i <= 2500; i++ {
		fmt.Fprintf(&sb, "%d,v%d\n", i, i)
	}

	res, f := convertString(t, Options{MaxRowsPerSheet: 1000}, Request{}, sb.String())

	if res.Sheets != 3 || res.DataRows != 2500 {
		t.Errorf("result = %+v, want 3 sheets and 2500 rows", res)
	}
	if got, want := f.GetSheetList(), []string{"Sheet_1", "Sheet_2", "Sheet_3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}

	wantRows := []int{1001, 1001, 501}
	firstID := []string{"1", "1001", "2001"}
	for i, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			t.Fatalf("GetRows(%s) error = %v", name, err)
		}
		if len(rows) != wantRows[i] {
			t.Errorf("%s has %d rows, want %d", name, len(rows), wantRows[i])
		}
		if !reflect.DeepEqual(rows[0], []string{"id", "value"}) {
			t.Errorf("%s header = %v", name, rows[0])
		}
		if rows[1][0] != firstID[i] {
			t.Errorf("%s first id = %s, want %s", name, rows[1][0], firstID[i])
		}
	}
}

// rowSource generates a header plus n data rows without holding them in memory.
type rowSource struct {
	n, next int
	buf     []byte
}

func (s *rowSource) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		if s.next > s.n {
			return 0, io.EOF
		}
		if s.next == 0 {
			s.buf = []byte("id,name,amount\n")
		} else {
			s.buf = fmt.Appendf(nil, "%d,row-%d,%d.50\n", s.next, s.next, s.next%1000)
		}
		s.next++
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func TestConvert_LargeInputSplitsAtDefaultLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 1.5M row conversion in short mode")
	}

	var buf bytes.Buffer
	res, err := New(Options{ScratchDir: t.TempDir()}).Convert(
		context.Background(), Request{Source: &rowSource{n: 1500000}}, &buf)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if res.Sheets != 2 || res.DataRows != 1500000 || res.ErrorRows != 0 {
		t.Fatalf("result = %+v, want 2 sheets, 1500000 rows, no errors", res)
	}

	f := openWorkbook(t, buf.Bytes())
	if got, want := f.GetSheetList(), []string{"Sheet_1", "Sheet_2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}

	rows, err := f.Rows("Sheet_2")
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	if n != 500001 {
		t.Errorf("Sheet_2 has %d rows, want 500001", n)
	}
	if got := cell(t, f, "Sheet_2", "A2"); got != "1000001" {
		t.Errorf("Sheet_2!A2 = %q, want 1000001", got)
	}
}

func TestConvert_Encodings(t *testing.T) {
	tests := []struct {
		name      string
		input     []byte
		enc       Encoding
		wantLabel string
	}{
		{
			name:      "latin-1",
			input:     []byte("navn;by\nJos\xE9;K\xF8benhavn\n"),
			enc:       EncodingLatin1,
			wantLabel: "Semicolon",
		},
		{
			name:      "utf-16",
			input:     utf16LE("navn;by\nJosé;København\n"),
			enc:       EncodingUTF16,
			wantLabel: "Semicolon",
		},
		{
			name:      "utf-8 with bom",
			input:     append([]byte{0xEF, 0xBB, 0xBF}, "navn;by\nJosé;København\n"...),
			enc:       EncodingUTF8,
			wantLabel: "Semicolon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := Request{Source: bytes.NewReader(tt.input), Encoding: tt.enc}
			res, f := convertString(t, Options{}, req, "")

			if res.DetectedDelimiter != tt.wantLabel {
				t.Errorf("DetectedDelimiter = %q, want %q", res.DetectedDelimiter, tt.wantLabel)
			}
			if res.InputSize != int64(len(tt.input)) {
				t.Errorf("InputSize = %d, want %d", res.InputSize, len(tt.input))
			}
			if got := cell(t, f, "Sheet_1", "A1"); got != "navn" {
				t.Errorf("A1 = %q, want navn", got)
			}
			if got := cell(t, f, "Sheet_1", "A2"); got != "José" {
				t.Errorf("A2 = %q, want José", got)
			}
			if got := cell(t, f, "Sheet_1", "B2"); got != "København" {
				t.Errorf("B2 = %q, want København", got)
			}
		})
	}
}

func TestConvert_SampleBoundary(t *testing.T) {
	// A 5-byte sample ends inside the second character.
	res, f := convertString(t, Options{SampleSize: 5}, Request{}, "名前,値\n東京,1\n")

	if res.DataRows != 1 {
		t.Errorf("DataRows = %d, want 1", res.DataRows)
	}
	if got := cell(t, f, "Sheet_1", "A2"); got != "東京" {
		t.Errorf("A2 = %q, want 東京", got)
	}
}

func TestConvert_ExplicitDelimiter(t *testing.T) {
	res, f := convertString(t, Options{}, Request{Delimiter: DelimiterPipe}, "price|qty\n1,50|2\n")

	if res.DetectedDelimiter != "Pipe" {
		t.Errorf("DetectedDelimiter = %q, want Pipe", res.DetectedDelimiter)
	}
	if got := cell(t, f, "Sheet_1", "A2"); got != "1,50" {
		t.Errorf("A2 = %q, want 1,50", got)
	}
}

func TestConvert_FormulaTextStaysText(t *testing.T) {
	_, f := convertString(t, Options{}, Request{}, "expr\n=SUM(A1:A9)\n")

	if got := cell(t, f, "Sheet_1", "A2"); got != "=SUM(A1:A9)" {
		t.Errorf("A2 = %q", got)
	}
	formula, err := f.GetCellFormula("Sheet_1", "A2")
	if err != nil {
		t.Fatalf("GetCellFormula() error = %v", err)
	}
	if formula != "" {
		t.Errorf("A2 formula = %q, want none", formula)
	}
}

func TestConvert_HeaderOnly(t *testing.T) {
	res, f := convertString(t, Options{}, Request{}, "a,b,c\n")

	if res.DataRows != 0 || res.Sheets != 1 {
		t.Errorf("result = %+v, want 0 rows in 1 sheet", res)
	}
	rows, err := f.GetRows("Sheet_1")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if want := [][]string{{"a", "b", "c"}}; !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestConvert_NoHeader(t *testing.T) {
	res, f := convertString(t, Options{}, Request{NoHeader: true}, "1,2\n3,4\n")

	if res.DataRows != 2 {
		t.Errorf("DataRows = %d, want 2", res.DataRows)
	}
	if got := cell(t, f, "Sheet_1", "B1"); got != "Column_2" {
		t.Errorf("B1 = %q, want Column_2", got)
	}
	if got := cell(t, f, "Sheet_1", "A2"); got != "1" {
		t.Errorf("A2 = %q, want 1", got)
	}
}

func TestConvert_ErrorCap(t *testing.T) {
	input := "a,b\n1\n2\n3\n4\n5,5\n"
	res, f := convertString(t, Options{MaxErrorRows: 2}, Request{}, input)

	if res.ErrorRows != 4 {
		t.Errorf("ErrorRows = %d, want 4", res.ErrorRows)
	}
	if res.DataRows != 5 {
		t.Errorf("DataRows = %d, want 5", res.DataRows)
	}
	rows, err := f.GetRows(ErrorSheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Errors sheet has %d rows, want header + 2 + summary", len(rows))
	}
	if got := cell(t, f, ErrorSheetName, "C4"); got != "2 further errors not recorded" {
		t.Errorf("summary = %q", got)
	}
	if got := cell(t, f, ErrorSheetName, "A4"); got != "" {
		t.Errorf("summary row number = %q, want empty", got)
	}
}

func TestConvert_Idempotent(t *testing.T) {
	input := "a;b\n1;2\n3\n4;5;6\n"

	sheetsOf := func(f *excelize.File) map[string][][]string {
		out := make(map[string][][]string)
		for _, name := range f.GetSheetList() {
			rows, err := f.GetRows(name)
			if err != nil {
				t.Fatalf("GetRows(%s) error = %v", name, err)
			}
			out[name] = rows
		}
		return out
	}

	res1, f1 := convertString(t, Options{}, Request{}, input)
	res2, f2 := convertString(t, Options{}, Request{}, input)

	if !reflect.DeepEqual(sheetsOf(f1), sheetsOf(f2)) {
		t.Error("repeated conversions produced different workbooks")
	}
	if res1.DataRows != res2.DataRows || res1.ErrorRows != res2.ErrorRows || res1.Sheets != res2.Sheets {
		t.Errorf("results differ: %+v vs %+v", res1, res2)
	}
	if res1.ID == res2.ID {
		t.Error("conversion ids are not unique")
	}
}

func TestConvert_Failures(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		req        Request
		wantErr    error
		wantClient bool
	}{
		{"empty input", nil, Request{}, ErrEmptyFile, true},
		{"blank lines only", []byte("\n\n\n"), Request{}, ErrEmptyFile, true},
		{"invalid utf-8", []byte("a,b\n\xFF\xFE,1\n"), Request{}, ErrEncoding, true},
		{"unknown delimiter", []byte("a,b\n"), Request{Delimiter: Delimiter(9)}, ErrInvalidDelimiter, true},
		{"unknown encoding", []byte("a,b\n"), Request{Encoding: Encoding(9)}, ErrInvalidEncoding, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			req := tt.req
			req.Source = bytes.NewReader(tt.input)

			var buf bytes.Buffer
			res, err := New(Options{ScratchDir: dir}).Convert(context.Background(), req, &buf)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Convert() error = %v, want %v", err, tt.wantErr)
			}
			if res != nil {
				t.Errorf("Convert() result = %+v, want nil", res)
			}
			if got := IsClientError(err); got != tt.wantClient {
				t.Errorf("IsClientError() = %v, want %v", got, tt.wantClient)
			}
			if buf.Len() != 0 {
				t.Errorf("%d bytes written on failure", buf.Len())
			}
		})
	}
}

func TestConvert_Cancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := New(Options{ScratchDir: dir}).Convert(ctx, Request{Source: &rowSource{n: 1000}}, &buf)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Convert() error = %v, want ErrCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Convert() error = %v, want context.Canceled", err)
	}
	if IsClientError(err) {
		t.Error("cancellation reported as client error")
	}
}

// cancelAfter cancels its context once n bytes have been read.
type cancelAfter struct {
	r      io.Reader
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n -= n
	if c.n <= 0 {
		c.cancel()
	}
	return n, err
}

func TestConvert_CancelledMidStream(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &cancelAfter{r: &rowSource{n: 200000}, n: 256 * 1024, cancel: cancel}
	var buf bytes.Buffer
	_, err := New(Options{ScratchDir: dir, MaxRowsPerSheet: 5000}).Convert(ctx, Request{Source: src}, &buf)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Convert() error = %v, want ErrCancelled", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d scratch files left after cancellation", len(entries))
	}
}

func TestConvert_ScratchFilesRemoved(t *testing.T) {
	dir := t.TempDir()
	convertString(t, Options{ScratchDir: dir, MaxRowsPerSheet: 2}, Request{}, "n\n1\n2\n3\n4\n5\n")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d scratch files left after conversion", len(entries))
	}
}

func TestConvert_ReadFailure(t *testing.T) {
	boom := errors.New("upload interrupted")
	src := io.MultiReader(strings.NewReader("a,b\n1,2\n"), &failingReader{err: boom})

	_, err := New(Options{ScratchDir: t.TempDir()}).Convert(context.Background(), Request{Source: src}, io.Discard)
	if !errors.Is(err, ErrRead) || !errors.Is(err, boom) {
		t.Fatalf("Convert() error = %v, want ErrRead wrapping cause", err)
	}
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }
