// Package export writes the tabular markup produced by a project: one row per label.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dshills/audiomark-mcp/internal/dataset"
	"github.com/dshills/audiomark-mcp/pkg/types"
)

// Format selects the markup encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Header is the CSV column order
var Header = []string{"fingerprint", "relative_path", "start", "end", "description", "is_corrupted"}

// Row is one label of one entry
type Row struct {
	Fingerprint  string  `json:"fingerprint"`
	RelativePath string  `json:"relative_path"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Description  string  `json:"description"`
	IsCorrupted  bool    `json:"is_corrupted"`
}

// Rows flattens entries into label rows, preserving entry and label order.
// Entries without labels produce no rows.
func Rows(views []dataset.View) []Row {
	rows := make([]Row, 0, len(views))
	for _, v := range views {
		for _, l := range v.Labels {
			rows = append(rows, Row{
				Fingerprint:  v.Fingerprint.String(),
				RelativePath: v.RelativePath,
				Start:        l.Start,
				End:          l.End,
				Description:  l.Description,
				IsCorrupted:  v.IsCorrupted,
			})
		}
	}
	return rows
}

// FormatFor picks the encoding from the file extension; anything but .json is CSV
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatCSV
}

// Write encodes rows to w
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("encode markup: %w", err)
		}
		return nil
	case FormatCSV:
		return writeCSV(w, rows)
	default:
		return fmt.Errorf("%w: unknown export format %q", types.ErrInvalidArgument, format)
	}
}

func writeCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Fingerprint,
			r.RelativePath,
			formatMs(r.Start),
			formatMs(r.End),
			r.Description,
			strconv.FormatBool(r.IsCorrupted),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatMs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteFile writes rows to path, picking the format from its extension.
// The file is replaced atomically.
func WriteFile(path string, rows []Row) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".markup-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file in %s: %w", types.ErrIO, dir, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := Write(tmp, FormatFor(path), rows); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", types.ErrIO, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename to %s: %w", types.ErrIO, path, err)
	}
	return nil
}
