// Package dataset implements poem corpus sources.
package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"poetry_server/core/port/out"
	"poetry_server/pkg/apperr"
)

const utf8BOM = "\ufeff"

// CSVSource reads the corpus from a UTF-8 CSV file with a header row.
type CSVSource struct {
	path string
}

var _ out.DatasetSource = (*CSVSource)(nil)

// NewCSVSource creates a source for the file at path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Name identifies the source in logs.
func (s *CSVSource) Name() string {
	return "csv:" + s.path
}

// Load reads the whole file. A missing or unreadable file is a configuration error.
func (s *CSVSource) Load(ctx context.Context) (*out.Table, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, apperr.ConfigErrorf("open poem dataset: %v", err)
	}
	defer f.Close()

	return ReadCSV(ctx, f)
}

// ReadCSV parses a header row followed by records. Short records leave trailing
// columns missing; cells beyond the header are ignored.
func ReadCSV(ctx context.Context, r io.Reader) (*out.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperr.ConfigError("poem dataset is empty")
	}
	if err != nil {
		return nil, apperr.ConfigErrorf("read dataset header: %v", err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		columns[i] = strings.TrimSpace(h)
	}

	table := &out.Table{Columns: columns}
	for line := 2; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperr.ConfigErrorf("read dataset line %d: %v", line, err)
		}

		row := make(out.Row, len(columns))
		for i, cell := range record {
			if i >= len(columns) {
				break
			}
			if columns[i] == "" {
				continue
			}
			row[columns[i]] = cell
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}
