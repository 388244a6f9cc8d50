package etl

import "slices"

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records, all destinations consume Records.
// A value is always one of nil, string, int64 or float64.

// Field types.
const (
	TypeText    = "text"
	TypeInteger = "integer"
	TypeNumber  = "number"
)

// Field describes a single column in a dataset.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "integer" | "number"
}

// Schema describes the ordered column set of a table.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether the schema contains a field with the given name.
func (s *Schema) Has(name string) bool {
	return s.index(name) >= 0
}

// Add appends a field if no field with that name exists yet.
// An existing field keeps its position; its type is replaced when typ is non-empty.
func (s *Schema) Add(name, typ string) {
	if i := s.index(name); i >= 0 {
		if typ != "" {
			s.Fields[i].Type = typ
		}
		return
	}
	if typ == "" {
		typ = TypeText
	}
	s.Fields = append(s.Fields, Field{Name: name, Type: typ})
}

// Rename changes a field name in place.
func (s *Schema) Rename(old, new_ string) {
	if i := s.index(old); i >= 0 {
		s.Fields[i].Name = new_
	}
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() Schema {
	return Schema{Fields: slices.Clone(s.Fields)}
}

func (s *Schema) index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Record is a single row of data flowing through the pipeline.
type Record struct {
	Data map[string]any `json:"data"`
}

// Clone returns a shallow copy of the record's data map.
func (r Record) Clone() Record {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return Record{Data: data}
}

// ── Table ──────────────────────────────────────────────────

// Table is an ordered sequence of Records sharing one Schema.
type Table struct {
	Schema  Schema   `json:"schema"`
	Records []Record `json:"records"`
}

// NewTable creates an empty table with the declared columns.
func NewTable(fields ...Field) *Table {
	return &Table{Schema: Schema{Fields: slices.Clone(fields)}}
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.Records) }

// Append concatenates another table's records, extending the schema with any
// columns it has not seen yet (in discovery order).
func (t *Table) Append(other *Table) {
	for _, f := range other.Schema.Fields {
		if !t.Schema.Has(f.Name) {
			t.Schema.Fields = append(t.Schema.Fields, f)
		}
	}
	t.Records = append(t.Records, other.Records...)
}

// Normalize makes every record carry exactly the schema's columns.
// Missing columns are set to nil and unknown keys are removed.
func (t *Table) Normalize() {
	for i, rec := range t.Records {
		if rec.Data == nil {
			rec.Data = make(map[string]any, len(t.Schema.Fields))
		}
		for k := range rec.Data {
			if !t.Schema.Has(k) {
				delete(rec.Data, k)
			}
		}
		for _, f := range t.Schema.Fields {
			if _, ok := rec.Data[f.Name]; !ok {
				rec.Data[f.Name] = nil
			}
		}
		t.Records[i] = rec
	}
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) []any {
	out := make([]any, len(t.Records))
	for i, rec := range t.Records {
		out[i] = rec.Data[name]
	}
	return out
}

// Rows returns the records as positional rows in schema order.
func (t *Table) Rows() [][]any {
	names := t.Schema.FieldNames()
	rows := make([][]any, len(t.Records))
	for i, rec := range t.Records {
		row := make([]any, len(names))
		for j, n := range names {
			row[j] = rec.Data[n]
		}
		rows[i] = row
	}
	return rows
}

// InferType returns the field type for a single value.
func InferType(v any) string {
	switch v.(type) {
	case int64, int:
		return TypeInteger
	case float64, float32:
		return TypeNumber
	default:
		return TypeText
	}
}

// ColumnType infers the storage type of a column from its non-nil values.
// All integers → integer; integers mixed with floats → number; anything else → text.
func (t *Table) ColumnType(name string) string {
	typ := ""
	for _, rec := range t.Records {
		v := rec.Data[name]
		if v == nil {
			continue
		}
		switch vt := InferType(v); {
		case vt == TypeText:
			return TypeText
		case typ == "" || typ == TypeInteger:
			typ = vt
		}
	}
	if typ == "" {
		for _, f := range t.Schema.Fields {
			if f.Name == name && f.Type != "" {
				return f.Type
			}
		}
		return TypeText
	}
	return typ
}
