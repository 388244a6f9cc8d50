package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"dataeng/internal/etl"
)

// ── XML File Source ─────────────────────────────────────────
// One record per top-level child of the document root. Fields are the
// record element's children, matched by local name.

type xmlFileSource struct{}

func init() { etl.RegisterSource(&xmlFileSource{}) }

func (s *xmlFileSource) Type() string { return "xml" }

type xmlNode struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []xmlNode `xml:",any"`
}

func (s *xmlFileSource) Extract(ctx context.Context, cfg etl.SourceConfig, env etl.Env) (*etl.Table, error) {
	locs, err := expandLocations(cfg, env)
	if err != nil {
		return nil, err
	}

	policy := cfg.Admission.Or(etl.AdmitNull)
	out := etl.NewTable(cfg.DeclaredFields()...)
	for _, loc := range locs {
		data, err := readLocation(ctx, loc, env)
		if err != nil {
			return nil, err
		}
		t, err := parseXML(data, cfg.DeclaredFields(), policy)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
		out.Append(t)
	}
	inferTypes(out)
	return out, nil
}

// parseXML reads every record element under the root. Without declared
// fields every child element becomes a text field.
func parseXML(data []byte, fields []etl.Field, policy etl.AdmissionPolicy) (*etl.Table, error) {
	var root xmlNode
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}

	t := etl.NewTable(fields...)
	for i, node := range root.Children {
		rec := etl.Record{Data: map[string]any{}}
		cols := fields
		if len(cols) == 0 {
			cols = childFields(node)
			for _, f := range cols {
				t.Schema.Add(f.Name, f.Type)
			}
		}

		keep := true
		for _, f := range cols {
			child, ok := findChild(node, f.Name)
			if !ok {
				rec.Data[f.Name] = nil
				continue
			}
			v, err := xmlValue(child.Text, f.Type)
			if err == nil {
				rec.Data[f.Name] = v
				continue
			}
			keep, err = admit(policy, rec, f.Name, err)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			if !keep {
				break
			}
		}
		if keep {
			t.Records = append(t.Records, rec)
		}
	}
	return t, nil
}

func findChild(node xmlNode, name string) (xmlNode, bool) {
	for _, c := range node.Children {
		if c.XMLName.Local == name {
			return c, true
		}
	}
	return xmlNode{}, false
}

func childFields(node xmlNode) []etl.Field {
	var fields []etl.Field
	seen := map[string]bool{}
	for _, c := range node.Children {
		if seen[c.XMLName.Local] {
			continue
		}
		seen[c.XMLName.Local] = true
		fields = append(fields, etl.Field{Name: c.XMLName.Local, Type: etl.TypeText})
	}
	return fields
}

// xmlValue converts element text to the field's type. Empty text is nil.
func xmlValue(text, typ string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	switch typ {
	case etl.TypeInteger:
		if !isDigits(trimmed) {
			return nil, fmt.Errorf("not an integer: %q", trimmed)
		}
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case etl.TypeNumber:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", trimmed)
		}
		return f, nil
	default:
		return text, nil
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
