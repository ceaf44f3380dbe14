// Package convert turns delimited text into XLSX workbooks.
//
// A conversion is a single forward pass over the input:
//
//  1. A bounded sample is read and passed to [Detect], which validates the
//     requested encoding and picks the field delimiter.
//  2. A [RowDecoder] decodes the full stream (sample included) to UTF-8 and
//     yields one [RawRow] at a time. Rows whose width differs from the header
//     are still yielded; the mismatch goes to the [Collector].
//  3. A [SheetWriter] partitions rows into sheets of at most
//     [Options.MaxRowsPerSheet] data rows, each with the same header, and
//     spills them to scratch files so memory stays proportional to the
//     column count.
//  4. A [Finalizer] sizes columns, bolds and freezes each header, appends the
//     Errors sheet and streams the workbook to the caller's writer.
//
// [Converter.Convert] wires the stages together. Fatal failures are returned
// as [*ConversionError]; match the kind with errors.Is:
//
//	res, err := convert.New(convert.Options{}).Convert(ctx, req, w)
//	if errors.Is(err, convert.ErrEmptyFile) {
//	    // reject the upload
//	}
//
// Nothing in the package keeps state between conversions.
package convert
