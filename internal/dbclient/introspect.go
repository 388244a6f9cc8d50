package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Introspect returns every table of the database with its columns.
func (s *SQLStore) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	names, err := s.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	schema := &SchemaInfo{}
	for _, name := range names {
		cols, _, err := s.tableColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, TableInfo{Name: name, Columns: cols})
	}
	return schema, nil
}

func (s *SQLStore) tableNames(ctx context.Context) ([]string, error) {
	var query string
	switch s.dialect.name {
	case "sqlite":
		query = `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	case "postgres":
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() ORDER BY table_name`
	default:
		query = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// tableColumns returns the columns of one table in ordinal order and whether
// the table exists.
func (s *SQLStore) tableColumns(ctx context.Context, table string) ([]ColumnInfo, bool, error) {
	var (
		rows *sql.Rows
		err  error
	)
	switch s.dialect.name {
	case "sqlite":
		rows, err = s.db.QueryContext(ctx, "PRAGMA table_info("+s.dialect.ident(table)+")")
	case "postgres":
		rows, err = s.db.QueryContext(ctx,
			`SELECT column_name, data_type FROM information_schema.columns
			 WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`, table)
	default:
		rows, err = s.db.QueryContext(ctx,
			`SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
			 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`, table)
	}
	if err != nil {
		return nil, false, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var ci ColumnInfo
		if s.dialect.name == "sqlite" {
			var cid, notNull, pk int
			var dflt sql.NullString
			if err := rows.Scan(&cid, &ci.Name, &ci.Type, &notNull, &dflt, &pk); err != nil {
				return nil, false, fmt.Errorf("describe %s: %w", table, err)
			}
		} else if err := rows.Scan(&ci.Name, &ci.Type); err != nil {
			return nil, false, fmt.Errorf("describe %s: %w", table, err)
		}
		cols = append(cols, ci)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("describe %s: %w", table, err)
	}
	return cols, len(cols) > 0, nil
}
