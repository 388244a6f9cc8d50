// Package report renders tables, run summaries and history for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"dataeng/internal/etl"
	"dataeng/internal/storage"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// Table renders the records of t with a header row. Values are printed the
// way the csv sink writes them.
func Table(w io.Writer, t *etl.Table) {
	tw := newTable(w)
	header := table.Row{}
	for _, name := range t.Schema.FieldNames() {
		header = append(header, name)
	}
	tw.AppendHeader(header)
	for _, row := range t.Rows() {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = etl.FormatValue(v)
		}
		tw.AppendRow(r)
	}
	tw.Render()
}

// Result prints the outcome of one run: every sink, the verification queries
// and a final rows-processed line.
func Result(w io.Writer, res *etl.SyncResult) {
	if len(res.Sinks) > 0 {
		tw := newTable(w)
		tw.AppendHeader(table.Row{"Sink", "Target", "Rows"})
		for _, s := range res.Sinks {
			tw.AppendRow(table.Row{s.Type, s.Target, s.Rows})
		}
		tw.Render()
	}
	for _, q := range res.Queries {
		fmt.Fprintln(w, q.Query)
		Table(w, q.Table)
	}
	fmt.Fprintf(w, "%s: %d rows processed in %s\n", res.Pipeline, res.RowsRead, res.Duration.Round(time.Millisecond))
}

// Pipelines lists pipeline definitions.
func Pipelines(w io.Writer, pipelines []etl.Pipeline) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Name", "Sources", "Sinks", "Trigger", "Description"})
	for _, p := range pipelines {
		sources := make([]string, len(p.Sources))
		for i, s := range p.Sources {
			sources[i] = s.Type
		}
		sinks := make([]string, len(p.Sinks))
		for i, s := range p.Sinks {
			sinks[i] = s.Type + ":" + s.Target()
		}
		tw.AppendRow(table.Row{p.Name, strings.Join(sources, ", "), strings.Join(sinks, ", "), trigger(p), p.Description})
	}
	tw.Render()
}

func trigger(p etl.Pipeline) string {
	var parts []string
	if p.Schedule != "" {
		parts = append(parts, "cron "+p.Schedule)
	}
	if len(p.Watch) > 0 {
		parts = append(parts, fmt.Sprintf("watch %d file(s)", len(p.Watch)))
	}
	if len(parts) == 0 {
		return "manual"
	}
	return strings.Join(parts, ", ")
}

// Runs renders run history, newest first as given.
func Runs(w io.Writer, runs []storage.Run) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Started", "Pipeline", "Trigger", "Status", "Read", "Written", "Duration", "Error"})
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.StartedAt.Local().Format(time.DateTime),
			r.Pipeline,
			r.Trigger,
			r.Status,
			r.RowsRead,
			r.RowsWritten,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Error,
		})
	}
	tw.Render()
}
