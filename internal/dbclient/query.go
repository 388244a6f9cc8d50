package dbclient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dataeng/internal/etl"
)

// readPrefixes are the statement keywords accepted by Query.
var readPrefixes = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN", "PRAGMA"}

// IsReadQuery detects if a query is a read (SELECT, WITH, SHOW, DESCRIBE, EXPLAIN, PRAGMA).
func IsReadQuery(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range readPrefixes {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return false
}

// Query runs a single read-only statement and returns its rows as a table.
// Writes are refused by the connection itself: sqlite connections switch to
// query_only for the statement, other databases run it in a read-only
// transaction that is always rolled back.
func (s *SQLStore) Query(ctx context.Context, query string) (*etl.Table, error) {
	if !IsReadQuery(query) {
		return nil, fmt.Errorf("query rejected: only read-only statements (%s) are allowed", strings.Join(readPrefixes, ", "))
	}
	if !singleStatement(query) {
		return nil, errors.New("query rejected: only a single statement is allowed")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if s.dialect.name == "sqlite" {
		return s.querySQLite(ctx, query)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanTable(rows)
}

func (s *SQLStore) querySQLite(ctx context.Context, query string) (*etl.Table, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("enable query_only: %w", err)
	}
	defer func() {
		// ctx may already be done; the connection goes back to the pool writable.
		if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = OFF"); err != nil {
			slog.Warn("reset query_only failed", "error", err)
		}
	}()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanTable(rows)
}

func scanTable(rows *sql.Rows) (*etl.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	t := etl.NewTable()
	for _, c := range cols {
		t.Schema.Add(c, "")
	}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec := etl.Record{Data: make(map[string]any, len(cols))}
		for j, c := range cols {
			rec.Data[c] = recordValue(values[j])
		}
		t.Records = append(t.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}

	for i, f := range t.Schema.Fields {
		t.Schema.Fields[i].Type = t.ColumnType(f.Name)
	}
	return t, nil
}

// singleStatement reports whether query holds at most one statement. A
// trailing semicolon is allowed; semicolons inside quotes or comments are
// ignored.
func singleStatement(query string) bool {
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			for i < len(query) && query[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return true
			}
			i += end + 3
		case c == ';':
			return strings.TrimSpace(stripComments(query[i+1:])) == ""
		}
	}
	return true
}

// stripComments removes -- and /* */ comments outside of quotes.
func stripComments(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '-' && i+1 < len(s) && s[i+1] == '-':
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case s[i] == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// recordValue converts a scanned database value to a record value.
func recordValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	default:
		return val
	}
}
