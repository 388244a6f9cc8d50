package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"

	"dataeng/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from delimited text files, one record per line after the header.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Type() string { return "csv" }

func (s *csvFileSource) Extract(ctx context.Context, cfg etl.SourceConfig, env etl.Env) (*etl.Table, error) {
	locs, err := expandLocations(cfg, env)
	if err != nil {
		return nil, err
	}

	out := etl.NewTable()
	for _, loc := range locs {
		data, err := readLocation(ctx, loc, env)
		if err != nil {
			return nil, err
		}
		t, err := parseCSV(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
		out.Append(t)
	}
	inferTypes(out)
	return out, nil
}

// parseCSV maps each data line to a record keyed by header name.
func parseCSV(data []byte, cfg etl.SourceConfig) (*etl.Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))

	// Configure delimiter.
	if len(cfg.Delimiter) > 0 {
		reader.Comma = rune(cfg.Delimiter[0])
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv file")
	}

	var headers []string
	var rows [][]string
	if cfg.HasHeader() {
		headers = records[0]
		rows = records[1:]
		if len(headers) > 0 {
			headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
		}
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			if i < len(cfg.Columns) {
				headers[i] = cfg.Columns[i]
			} else {
				// Generate column names: col_1, col_2, ...
				headers[i] = fmt.Sprintf("col_%d", i+1)
			}
		}
		rows = records
	}

	t := etl.NewTable()
	for _, h := range headers {
		t.Schema.Add(h, etl.TypeText)
	}
	for _, row := range rows {
		data := make(map[string]any, len(headers))
		for j, h := range headers {
			if j < len(row) {
				data[h] = inferCSVValue(row[j])
			} else {
				data[h] = nil
			}
		}
		t.Records = append(t.Records, etl.Record{Data: data})
	}
	return t, nil
}

// naValues are cell contents read as missing.
var naValues = map[string]bool{
	"": true, "#N/A": true, "#NA": true, "<NA>": true, "N/A": true, "NA": true, "n/a": true,
	"NULL": true, "null": true, "NaN": true, "nan": true, "-NaN": true, "-nan": true, "None": true,
}

// inferCSVValue types a cell the way it reads: integer, float, missing or text.
func inferCSVValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if naValues[trimmed] {
		return nil
	}

	// Try number.
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}

	return s
}
