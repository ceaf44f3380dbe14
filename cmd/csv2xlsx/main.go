// Package main provides the command line converter.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csv2xlsx/internal/convert"
	"github.com/JonMunkholm/csv2xlsx/internal/core"
	"github.com/JonMunkholm/csv2xlsx/internal/logging"
)

type convertFlags struct {
	output    string
	delimiter string
	encoding  string
	maxRows   int
	noHeader  bool
	pretty    bool
	logLevel  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		msg := core.FormatUserError(err)
		if !core.IsUserFacing(err) {
			msg = err.Error()
		}
		fmt.Fprintln(os.Stderr, "error:", msg)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "csv2xlsx",
		Short:         "Convert delimited text files to Excel workbooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newConvertCmd())
	return root
}

func newConvertCmd() *cobra.Command {
	var f convertFlags

	cmd := &cobra.Command{
		Use:   "convert [input.csv]",
		Short: "Convert one CSV/TSV file to .xlsx",
		Long: `convert streams a delimited text file into an .xlsx workbook.
The delimiter and encoding are detected unless given. Rows whose column count
differs from the header are kept and listed on an "Errors" sheet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args[0], f)
		},
	}

	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output file path (default: input name with .xlsx)")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "auto", "Delimiter: auto, comma, tab, semicolon, pipe")
	cmd.Flags().StringVar(&f.encoding, "encoding", "utf-8", "Encoding: utf-8, latin-1, utf-16")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", convert.DefaultMaxRowsPerSheet, "Data rows per sheet")
	cmd.Flags().BoolVar(&f.noHeader, "no-header", false, "Treat the first row as data")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "Pretty-print the JSON result")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "warn", "Log level on stderr: debug, info, warn, error")

	return cmd
}

func runConvert(cmd *cobra.Command, inputPath string, f convertFlags) error {
	delim, err := convert.ParseDelimiter(f.delimiter)
	if err != nil {
		return err
	}
	enc, err := convert.ParseEncoding(f.encoding)
	if err != nil {
		return err
	}
	if f.maxRows <= 0 || f.maxRows > convert.XLSXMaxRows-1 {
		return fmt.Errorf("--max-rows must be 1-%d", convert.XLSXMaxRows-1)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	outPath := f.output
	if outPath == "" {
		outPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".xlsx"
	}

	conv := convert.New(convert.Options{
		MaxRowsPerSheet: f.maxRows,
		Logger:          logging.New(cmd.ErrOrStderr(), f.logLevel, "text"),
	})

	var res *convert.Result
	err = writeAtomic(outPath, func(w io.Writer) error {
		var err error
		res, err = conv.Convert(cmd.Context(), convert.Request{
			Source:    in,
			Delimiter: delim,
			Encoding:  enc,
			FileName:  filepath.Base(inputPath),
			NoHeader:  f.noHeader,
		}, w)
		return err
	})
	if err != nil {
		return err
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	if f.pretty {
		out.SetIndent("", "  ")
	}
	return out.Encode(struct {
		Output string `json:"output"`
		*convert.Result
	}{outPath, res})
}

// writeAtomic writes through a temp file next to path and renames it into
// place, so a failed conversion never leaves a partial workbook.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".csv2xlsx-*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
