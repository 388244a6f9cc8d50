package dbclient

import (
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// buildSQLiteDSN opens the database file in WAL mode with a busy timeout.
func buildSQLiteDSN(cfg ConnectionConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.Path == "" {
		return ""
	}
	if cfg.Path == ":memory:" {
		return cfg.Path
	}
	return cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

// buildLibSQLDSN builds a libsql:// URL; the password is used as the auth token.
func buildLibSQLDSN(cfg ConnectionConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.Host == "" {
		return ""
	}
	dsn := cfg.Host
	if !strings.Contains(dsn, "://") {
		dsn = "libsql://" + dsn
	}
	if cfg.Password != "" {
		dsn += "?authToken=" + cfg.Password
	}
	return dsn
}
