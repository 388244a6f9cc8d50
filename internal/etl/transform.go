package etl

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ── Transformer ────────────────────────────────────────────
// Transformers rewrite records between extraction and loading.
// They are composable and row-wise: a transformer never drops or reorders
// records, it only rewrites values and may declare new columns.

// Transformer processes a single record.
type Transformer interface {
	Transform(Record) (Record, error)
}

// SchemaTransformer is implemented by transformers that add, rename or retype columns.
type SchemaTransformer interface {
	TransformSchema(*Schema)
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(Record) (Record, error)

func (f TransformerFunc) Transform(r Record) (Record, error) { return f(r) }

// ── Built-in Transforms ────────────────────────────────────

// NumericTransform converts a column to float64 after removing formatting
// characters. Values that fail conversion become nil.
type NumericTransform struct {
	Field string
	Strip string // characters removed before parsing, e.g. ","
}

func (t *NumericTransform) Transform(r Record) (Record, error) {
	if v, ok := r.Data[t.Field]; ok {
		r.Data[t.Field] = coerceNumber(v, t.Strip)
	}
	return r, nil
}

func (t *NumericTransform) TransformSchema(s *Schema) { s.Add(t.Field, TypeNumber) }

// RoundTransform rounds a numeric column to a fixed number of decimals.
// Non-numeric values become nil.
type RoundTransform struct {
	Field  string
	Places int
}

func (t *RoundTransform) Transform(r Record) (Record, error) {
	v, ok := r.Data[t.Field]
	if !ok || v == nil {
		return r, nil
	}
	if i, isInt := v.(int64); isInt {
		r.Data[t.Field] = i
		return r, nil
	}
	f, ok := toFloatSafe(v)
	if !ok || !finite(f) {
		r.Data[t.Field] = nil
		return r, nil
	}
	r.Data[t.Field] = RoundHalfEven(f, t.Places)
	return r, nil
}

// CurrencyTarget is one derived column of a CurrencyTransform.
type CurrencyTarget struct {
	Code   string `json:"code"`
	Column string `json:"column"`
}

// CurrencyTransform derives one column per target currency by multiplying the
// base column by the currency's rate and rounding the product.
type CurrencyTransform struct {
	Base    string
	Places  int
	Targets []CurrencyTarget
	rates   map[string]float64
}

// NewCurrencyTransform resolves every target code against the rate map.
// A missing code is an ErrRateKeyMissing; no default rate is assumed.
func NewCurrencyTransform(base string, places int, targets []CurrencyTarget, rates ExchangeRates) (*CurrencyTransform, error) {
	resolved := make(map[string]float64, len(targets))
	for _, tg := range targets {
		rate, err := rates.Rate(tg.Code)
		if err != nil {
			return nil, err
		}
		resolved[tg.Code] = rate
	}
	return &CurrencyTransform{Base: base, Places: places, Targets: targets, rates: resolved}, nil
}

func (t *CurrencyTransform) Transform(r Record) (Record, error) {
	base, ok := toFloatSafe(r.Data[t.Base])
	for _, tg := range t.Targets {
		if !ok {
			r.Data[tg.Column] = nil
			continue
		}
		v := base * t.rates[tg.Code]
		if !finite(v) {
			r.Data[tg.Column] = nil
			continue
		}
		r.Data[tg.Column] = RoundHalfEven(v, t.Places)
	}
	return r, nil
}

func (t *CurrencyTransform) TransformSchema(s *Schema) {
	for _, tg := range t.Targets {
		s.Add(tg.Column, TypeNumber)
	}
}

// RenameTransform renames fields in a record.
type RenameTransform struct {
	Mapping map[string]string // oldName → newName
}

func (t *RenameTransform) Transform(r Record) (Record, error) {
	for old, new_ := range t.Mapping {
		if v, ok := r.Data[old]; ok {
			r.Data[new_] = v
			delete(r.Data, old)
		}
	}
	return r, nil
}

func (t *RenameTransform) TransformSchema(s *Schema) {
	for old, new_ := range t.Mapping {
		s.Rename(old, new_)
	}
}

// ── Helpers ────────────────────────────────────────────────

// ApplyTransformers runs a chain of transformers over every record and returns
// a new table. The input table is left untouched.
func ApplyTransformers(in *Table, ts []Transformer) (*Table, error) {
	out := &Table{Schema: in.Schema.Clone(), Records: make([]Record, 0, len(in.Records))}
	for _, t := range ts {
		if st, ok := t.(SchemaTransformer); ok {
			st.TransformSchema(&out.Schema)
		}
	}
	for i, rec := range in.Records {
		r := rec.Clone()
		for _, t := range ts {
			var err error
			r, err = t.Transform(r)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
		}
		out.Records = append(out.Records, r)
	}
	out.Normalize()
	return out, nil
}

// RoundHalfEven rounds f to the given number of decimal places, resolving
// ties to the even neighbour. Values too large to scale are returned as is;
// they carry no fractional digits at that magnitude.
func RoundHalfEven(f float64, places int) float64 {
	p := math.Pow10(places)
	scaled := f * p
	if math.IsInf(scaled, 0) || math.IsNaN(scaled) {
		return f
	}
	return math.RoundToEven(scaled) / p
}

// coerceNumber converts v to float64 or nil.
func coerceNumber(v any, strip string) any {
	if s, ok := v.(string); ok && strip != "" {
		v = strings.Map(func(r rune) rune {
			if strings.ContainsRune(strip, r) {
				return -1
			}
			return r
		}, s)
	}
	f, ok := toFloatSafe(v)
	if !ok || !finite(f) {
		return nil
	}
	return f
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toFloatSafe(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
