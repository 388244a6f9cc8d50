package dbclient_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"dataeng/internal/dbclient"
	"dataeng/internal/etl"
)

func openTestStore(t *testing.T) *dbclient.SQLStore {
	t.Helper()
	s, err := dbclient.Open(context.Background(), dbclient.ConnectionConfig{
		Driver: dbclient.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "STAFF.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func instructorTable(n int) *etl.Table {
	t := etl.NewTable(
		etl.Field{Name: "ID", Type: etl.TypeInteger},
		etl.Field{Name: "FNAME", Type: etl.TypeText},
		etl.Field{Name: "SALARY", Type: etl.TypeNumber},
	)
	for i := 1; i <= n; i++ {
		t.Records = append(t.Records, etl.Record{Data: map[string]any{
			"ID": int64(i), "FNAME": "name", "SALARY": float64(i) * 1000.5,
		}})
	}
	return t
}

func count(t *testing.T, s *dbclient.SQLStore, table string) int64 {
	t.Helper()
	res, err := s.Query(context.Background(), "SELECT COUNT(*) AS n FROM "+table)
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	return res.Records[0].Data["n"].(int64)
}

func TestWrite_ReplaceTwiceDoesNotDouble(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for range 2 {
		n, err := s.Write(ctx, "INSTRUCTOR", instructorTable(5), etl.SyncReplace)
		require.NoError(t, err)
		require.Equal(t, 5, n)
	}
	require.Equal(t, int64(5), count(t, s, "INSTRUCTOR"))
}

func TestWrite_AppendAddsRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Write(ctx, "INSTRUCTOR", instructorTable(5), etl.SyncReplace)
	require.NoError(t, err)

	extra := etl.NewTable(etl.Field{Name: "ID", Type: etl.TypeInteger}, etl.Field{Name: "FNAME", Type: etl.TypeText})
	extra.Records = []etl.Record{{Data: map[string]any{"ID": int64(100), "FNAME": "John"}}}
	n, err := s.Write(ctx, "INSTRUCTOR", extra, etl.SyncAppend)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, int64(6), count(t, s, "INSTRUCTOR"))

	res, err := s.Query(ctx, "SELECT FNAME, SALARY FROM INSTRUCTOR WHERE ID = 100")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"FNAME": "John", "SALARY": nil}, res.Records[0].Data)
}

func TestWrite_AppendSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Write(ctx, "INSTRUCTOR", instructorTable(2), etl.SyncReplace)
	require.NoError(t, err)

	other := etl.NewTable(etl.Field{Name: "ID", Type: etl.TypeInteger}, etl.Field{Name: "DEPT", Type: etl.TypeText})
	other.Records = []etl.Record{{Data: map[string]any{"ID": int64(9), "DEPT": "x"}}}
	_, err = s.Write(ctx, "INSTRUCTOR", other, etl.SyncAppend)
	require.ErrorIs(t, err, etl.ErrSchemaMismatch)
	require.ErrorContains(t, err, "DEPT")

	// nothing inserted
	require.Equal(t, int64(2), count(t, s, "INSTRUCTOR"))
}

func TestWrite_AppendCreatesMissingTable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Write(ctx, "Departments", instructorTable(3), etl.SyncAppend)
	require.NoError(t, err)
	require.Equal(t, int64(3), count(t, s, "Departments"))
}

func TestWrite_ColumnTypes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Write(ctx, "t", instructorTable(1), etl.SyncReplace)
	require.NoError(t, err)

	schema, err := s.Introspect(ctx)
	require.NoError(t, err)
	want := &dbclient.SchemaInfo{Tables: []dbclient.TableInfo{{
		Name: "t",
		Columns: []dbclient.ColumnInfo{
			{Name: "ID", Type: "INTEGER"},
			{Name: "FNAME", Type: "TEXT"},
			{Name: "SALARY", Type: "REAL"},
		},
	}}}
	if diff := cmp.Diff(want, schema); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_RejectsWrites(t *testing.T) {
	s := openTestStore(t)

	for _, q := range []string{"DROP TABLE x", "  insert into x values (1)", "DELETE FROM x"} {
		_, err := s.Query(context.Background(), q)
		require.ErrorContains(t, err, "read-only", q)
	}
}

func TestQuery_WritesRefusedByConnection(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, err := s.Write(ctx, "INSTRUCTOR", instructorTable(5), etl.SyncReplace)
	require.NoError(t, err)

	_, err = s.Query(ctx, "WITH x AS (SELECT 1) DELETE FROM INSTRUCTOR")
	require.Error(t, err)
	require.Equal(t, int64(5), count(t, s, "INSTRUCTOR"))

	_, err = s.Query(ctx, "SELECT 1; DROP TABLE INSTRUCTOR")
	require.ErrorContains(t, err, "single statement")
	require.Equal(t, int64(5), count(t, s, "INSTRUCTOR"))

	// the connection is writable again for loads
	_, err = s.Write(ctx, "INSTRUCTOR", instructorTable(1), etl.SyncAppend)
	require.NoError(t, err)
	require.Equal(t, int64(6), count(t, s, "INSTRUCTOR"))
}

func TestQuery_SingleStatementForms(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, q := range []string{
		"SELECT 1;",
		"SELECT ';' AS s",
		"SELECT 1; -- trailing comment",
		"SELECT 1 /* ; */",
	} {
		_, err := s.Query(ctx, q)
		require.NoError(t, err, q)
	}
	_, err := s.Query(ctx, "SELECT 1; /* c */ SELECT 2")
	require.ErrorContains(t, err, "single statement")
}

func TestQuery_Table(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Write(ctx, "INSTRUCTOR", instructorTable(3), etl.SyncReplace)
	require.NoError(t, err)

	res, err := s.Query(ctx, "SELECT ID, SALARY FROM INSTRUCTOR ORDER BY ID DESC LIMIT 2")
	require.NoError(t, err)
	require.Equal(t, []string{"ID", "SALARY"}, res.Schema.FieldNames())
	require.Equal(t, etl.TypeInteger, res.Schema.Fields[0].Type)
	require.Equal(t, [][]any{{int64(3), 3001.5}, {int64(2), 2001.0}}, res.Rows())
}

func TestIsReadQuery(t *testing.T) {
	require.True(t, dbclient.IsReadQuery("select 1"))
	require.True(t, dbclient.IsReadQuery("\n WITH x AS (SELECT 1) SELECT * FROM x"))
	require.True(t, dbclient.IsReadQuery("PRAGMA table_info(x)"))
	require.False(t, dbclient.IsReadQuery("UPDATE x SET a = 1"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := dbclient.Open(context.Background(), dbclient.ConnectionConfig{Driver: "mongodb"})
	require.ErrorContains(t, err, "unsupported driver")
}
