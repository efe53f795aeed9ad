// Package dataset reads histogram batches from text and binary files.
//
// Text input holds one histogram per line with values separated by commas
// or whitespace. Blank lines and lines starting with '#' are skipped. Binary
// input is a sequence of little-endian float32 histograms with no header.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sbl8/histonet/core"
)

// Supported input formats.
const (
	FormatCSV    = "csv"
	FormatBinary = "bin"
)

// ErrEmpty is returned when an input holds no histograms.
var ErrEmpty = errors.New("no histograms in input")

// ReadCSV reads text histograms of numBins values each.
func ReadCSV(r io.Reader, numBins int) ([][]float32, error) {
	if numBins <= 0 {
		return nil, fmt.Errorf("num_bins must be positive, got %d", numBins)
	}
	var rows [][]float32
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ';' || r == ' ' || r == '\t'
		})
		if len(fields) != numBins {
			return nil, fmt.Errorf("line %d: %w: %d values, expected %d",
				line, core.ErrShapeMismatch, len(fields), numBins)
		}
		row := make([]float32, numBins)
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d, value %d: %w", line, i+1, err)
			}
			row[i] = float32(v)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading line %d: %w", line+1, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}

// ReadBinary reads consecutive little-endian float32 histograms of numBins
// values each. A trailing partial histogram is an error.
func ReadBinary(r io.Reader, numBins int) ([][]float32, error) {
	if numBins <= 0 {
		return nil, fmt.Errorf("num_bins must be positive, got %d", numBins)
	}
	var rows [][]float32
	buf := make([]byte, numBins*4)
	for {
		n, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("record %d: %w: %d trailing bytes, expected %d",
				len(rows), core.ErrShapeMismatch, n, len(buf))
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(rows), err)
		}
		row, err := core.BytesToFloats(buf)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(rows), err)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}

// WriteBinary writes histograms in the ReadBinary layout.
func WriteBinary(w io.Writer, rows [][]float32) error {
	for i, row := range rows {
		if _, err := w.Write(core.FloatsToBytes(row)); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// DetectFormat picks the input format from a file extension.
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".f32", ".raw":
		return FormatBinary
	default:
		return FormatCSV
	}
}

// ReadFile reads path in the given format; an empty format is detected from
// the extension. "-" reads standard input.
func ReadFile(path, format string, numBins int) ([][]float32, error) {
	if format == "" {
		format = DetectFormat(path)
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = bufio.NewReader(f)
	}

	switch format {
	case FormatCSV:
		return ReadCSV(r, numBins)
	case FormatBinary:
		return ReadBinary(r, numBins)
	}
	return nil, fmt.Errorf("unknown input format %q", format)
}
