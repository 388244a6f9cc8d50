package sources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"

	"dataeng/internal/etl"
)

// ── JSON Lines Source ──────────────────────────────────────
// One JSON object per line. Keys become columns in first-seen order.

type jsonLinesSource struct{}

func init() { etl.RegisterSource(&jsonLinesSource{}) }

func (s *jsonLinesSource) Type() string { return "jsonl" }

func (s *jsonLinesSource) Extract(ctx context.Context, cfg etl.SourceConfig, env etl.Env) (*etl.Table, error) {
	locs, err := expandLocations(cfg, env)
	if err != nil {
		return nil, err
	}

	out := etl.NewTable(cfg.DeclaredFields()...)
	for _, loc := range locs {
		data, err := readLocation(ctx, loc, env)
		if err != nil {
			return nil, err
		}
		t, err := parseJSONLines(data, cfg.Columns)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
		out.Append(t)
	}
	inferTypes(out)
	return out, nil
}

// parseJSONLines decodes every non-blank line as an object. When columns are
// declared only those keys are kept.
func parseJSONLines(data []byte, columns []string) (*etl.Table, error) {
	t := etl.NewTable()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		keys, values, err := decodeObject(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		rec := etl.Record{Data: make(map[string]any, len(keys))}
		for _, k := range keys {
			if len(columns) > 0 && !slices.Contains(columns, k) {
				continue
			}
			t.Schema.Add(k, "")
			rec.Data[k] = values[k]
		}
		t.Records = append(t.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return t, nil
}

// decodeObject reads one JSON object keeping its key order.
func decodeObject(line []byte) ([]string, map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected a JSON object")
	}

	var keys []string
	values := map[string]any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		v, err := jsonValue(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("key %q: %w", key, err)
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, fmt.Errorf("trailing data after object")
	}
	return keys, values, nil
}

// jsonValue maps a JSON value onto the record value types.
// Nested arrays and objects are kept as their JSON text.
func jsonValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}
}
