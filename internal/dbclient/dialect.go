package dbclient

import (
	"fmt"
	"strings"

	"dataeng/internal/etl"
)

// dialect holds the per-database differences of generated SQL.
type dialect struct {
	name        string
	quote       byte
	dollarArgs  bool // $1, $2 instead of ?
	integerType string
	numberType  string
	textType    string
}

var (
	sqliteDialect   = dialect{name: "sqlite", quote: '"', integerType: "INTEGER", numberType: "REAL", textType: "TEXT"}
	postgresDialect = dialect{name: "postgres", quote: '"', dollarArgs: true, integerType: "BIGINT", numberType: "DOUBLE PRECISION", textType: "TEXT"}
	mysqlDialect    = dialect{name: "mysql", quote: '`', integerType: "BIGINT", numberType: "DOUBLE", textType: "TEXT"}
)

// ident quotes an identifier, doubling any embedded quote character.
func (d dialect) ident(name string) string {
	q := string(d.quote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// placeholder returns the bind marker for the i-th argument (1-based).
func (d dialect) placeholder(i int) string {
	if d.dollarArgs {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// columnType maps a field type onto a column type.
func (d dialect) columnType(typ string) string {
	switch typ {
	case etl.TypeInteger:
		return d.integerType
	case etl.TypeNumber:
		return d.numberType
	default:
		return d.textType
	}
}

func (d dialect) createTable(table string, t *etl.Table) string {
	cols := make([]string, len(t.Schema.Fields))
	for i, f := range t.Schema.Fields {
		cols[i] = d.ident(f.Name) + " " + d.columnType(t.ColumnType(f.Name))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.ident(table), strings.Join(cols, ", "))
}

func (d dialect) insert(table string, columns []string) string {
	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.ident(c)
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.ident(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))
}
