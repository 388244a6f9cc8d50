package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dataeng/internal/etl"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// ConnectionConfig describes how to reach the relational store.
// DSN wins when set; otherwise it is built from the parts.
type ConnectionConfig struct {
	Driver   string `json:"driver"`
	DSN      string `json:"dsn,omitempty"`
	Path     string `json:"path,omitempty"` // sqlite database file
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
	SSLMode  string `json:"sslMode,omitempty"`

	// PasswordSecret references the password in a secret store, e.g.
	// "env:BANKS_DB_PASSWORD" or "keychain:banks". It wins over Password.
	PasswordSecret string `json:"passwordSecret,omitempty"`
}

// SchemaInfo contains the tables of a database.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SQLStore is a relational store: it loads tables, answers read-only queries
// and describes its schema. It implements etl.Store.
type SQLStore struct {
	dialect dialect
	db      *sql.DB
}

var _ etl.Store = (*SQLStore)(nil)

// Open connects to the store described by cfg and verifies the connection.
func Open(ctx context.Context, cfg ConnectionConfig) (*SQLStore, error) {
	var (
		driverName string
		dsn        string
		d          dialect
	)
	switch cfg.Driver {
	case DriverSQLite, "":
		driverName, d = DriverSQLite, sqliteDialect
		dsn = buildSQLiteDSN(cfg)
	case DriverLibSQL:
		driverName, d = DriverLibSQL, sqliteDialect
		dsn = buildLibSQLDSN(cfg)
	case DriverPostgres:
		driverName, d = DriverPostgres, postgresDialect
		dsn = buildPostgresDSN(cfg)
	case DriverMySQL:
		driverName, d = DriverMySQL, mysqlDialect
		dsn = buildMySQLDSN(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s: no dsn or path configured", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if d.name == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)
	}

	s := &SQLStore{dialect: d, db: db}
	if err := s.TestConnection(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driverName, err)
	}
	return s, nil
}

// Opener returns an etl.StoreOpener for cfg.
func Opener(cfg ConnectionConfig) etl.StoreOpener {
	return func(ctx context.Context) (etl.Store, error) {
		return Open(ctx, cfg)
	}
}

// TestConnection verifies connectivity.
func (s *SQLStore) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
