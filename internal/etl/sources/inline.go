package sources

import (
	"context"
	"math"
	"sort"

	"dataeng/internal/etl"
)

// inlineSource emits records written literally in the pipeline definition.
type inlineSource struct{}

func init() { etl.RegisterSource(&inlineSource{}) }

func (s *inlineSource) Type() string { return "inline" }

func (s *inlineSource) Extract(ctx context.Context, cfg etl.SourceConfig, _ etl.Env) (*etl.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := etl.NewTable(cfg.DeclaredFields()...)
	for _, row := range cfg.Rows {
		keys := cfg.Columns
		if len(keys) == 0 {
			keys = make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			sort.Strings(keys)
		}
		rec := etl.Record{Data: make(map[string]any, len(keys))}
		for _, k := range keys {
			t.Schema.Add(k, "")
			rec.Data[k] = inlineValue(row[k])
		}
		t.Records = append(t.Records, rec)
	}
	inferTypes(t)
	return t, nil
}

// inlineValue maps a decoded config value onto the record value types.
// Config numbers decode as float64; integral ones become int64.
func inlineValue(v any) any {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case int:
		return int64(n)
	case bool:
		if n {
			return "true"
		}
		return "false"
	default:
		return v
	}
}
