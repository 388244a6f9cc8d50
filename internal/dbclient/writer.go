package dbclient

import (
	"context"
	"fmt"
	"strings"

	"dataeng/internal/etl"
)

// Write loads a table into the store.
//
// replace drops and recreates the target from the table's columns, then
// inserts every row. append keeps the target's schema and fails with
// etl.ErrSchemaMismatch if it lacks any of the table's columns; a missing
// target is created. Both modes run in one transaction.
func (s *SQLStore) Write(ctx context.Context, table string, t *etl.Table, mode etl.SyncMode) (int, error) {
	if table == "" {
		return 0, fmt.Errorf("write: no table name")
	}
	if len(t.Schema.Fields) == 0 {
		return 0, fmt.Errorf("write %s: table has no columns", table)
	}

	create := true
	switch mode {
	case etl.SyncReplace:
	case etl.SyncAppend:
		// Introspect before the transaction opens.
		cols, exists, err := s.tableColumns(ctx, table)
		if err != nil {
			return 0, err
		}
		if exists {
			if missing := missingColumns(cols, t.Schema.FieldNames()); len(missing) > 0 {
				return 0, fmt.Errorf("%w: table %s has no column %s", etl.ErrSchemaMismatch, table, strings.Join(missing, ", "))
			}
			create = false
		}
	default:
		return 0, fmt.Errorf("write %s: unknown mode %q", table, mode)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if mode == etl.SyncReplace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.dialect.ident(table)); err != nil {
			return 0, fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if create {
		if _, err := tx.ExecContext(ctx, s.dialect.createTable(table, t)); err != nil {
			return 0, fmt.Errorf("create %s: %w", table, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, s.dialect.insert(table, t.Schema.FieldNames()))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range t.Rows() {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return t.Len(), nil
}

// missingColumns returns the wanted columns the table does not have.
// Names compare case-insensitively.
func missingColumns(have []ColumnInfo, want []string) []string {
	var missing []string
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.EqualFold(h.Name, w) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, w)
		}
	}
	return missing
}
