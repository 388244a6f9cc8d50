package sources

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"dataeng/internal/etl"
)

// ── Web Table Source ───────────────────────────────────────
// Scrapes the rows of the first <tbody> in an HTML document. Each row yields
// a (name, magnitude) pair taken from two cells.

type webTableSource struct{}

func init() { etl.RegisterSource(&webTableSource{}) }

func (s *webTableSource) Type() string { return "webtable" }

func (s *webTableSource) Extract(ctx context.Context, cfg etl.SourceConfig, env etl.Env) (*etl.Table, error) {
	locs, err := expandLocations(cfg, env)
	if err != nil {
		return nil, err
	}
	columns := cfg.Columns
	if len(columns) == 0 {
		columns = []string{"Name", "Value"}
	}
	if len(columns) != 2 {
		return nil, fmt.Errorf("webtable needs exactly 2 columns, got %v", columns)
	}

	out := etl.NewTable(etl.Field{Name: columns[0], Type: etl.TypeText}, etl.Field{Name: columns[1], Type: etl.TypeText})
	for _, loc := range locs {
		data, err := readLocation(ctx, loc, env)
		if err != nil {
			return nil, err
		}
		t, err := parseWebTable(data, columns[0], columns[1], cellIndex(cfg.NameCell, 1), cellIndex(cfg.ValueCell, 2), cfg.Admission.Or(etl.AdmitDrop))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", loc, err)
		}
		out.Append(t)
	}
	return out, nil
}

func cellIndex(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func parseWebTable(data []byte, nameCol, valueCol string, nameCell, valueCell int, policy etl.AdmissionPolicy) (*etl.Table, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	tbody := doc.Find("tbody").First()
	if tbody.Length() == 0 {
		return nil, fmt.Errorf("%w: no table body in document", etl.ErrSourceUnavailable)
	}

	t := etl.NewTable(etl.Field{Name: nameCol, Type: etl.TypeText}, etl.Field{Name: valueCol, Type: etl.TypeText})
	var rowErr error
	tbody.Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return true
		}
		rec := etl.Record{Data: map[string]any{nameCol: nil, valueCol: nil}}
		reject := func(cause error) bool {
			keep, err := admit(policy, rec, valueCol, cause)
			if err != nil {
				rowErr = fmt.Errorf("row %d: %w", i, err)
				return false
			}
			if keep {
				t.Records = append(t.Records, rec)
			}
			return true
		}

		if cells.Length() <= max(nameCell, valueCell) {
			return reject(fmt.Errorf("row has %d cells", cells.Length()))
		}

		name := cells.Eq(nameCell)
		if a := name.Find("a").First(); a.Length() > 0 {
			name = a
		}
		rec.Data[nameCol] = strippedText(name)

		raw := strippedText(cells.Eq(valueCell))
		if _, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64); err != nil {
			return reject(fmt.Errorf("not a number: %q", raw))
		}
		rec.Data[valueCol] = raw
		t.Records = append(t.Records, rec)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return t, nil
}

// strippedText concatenates every text node under the selection, each with
// surrounding whitespace removed.
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeStripped(n, &b)
	}
	return b.String()
}

func writeStripped(node *html.Node, b *strings.Builder) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		b.WriteString(strings.TrimSpace(node.Data))
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		writeStripped(child, b)
	}
}
