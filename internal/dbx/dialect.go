package dbx

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the differences between the SQL engines the repositories
// run on. Queries are written with '?' placeholders and rebound per dialect.
type Dialect struct {
	name     string
	driver   string
	numbered bool
	txLevel  sql.IsolationLevel
}

var (
	// Postgres is served through the pgx stdlib driver.
	Postgres = Dialect{name: "postgres", driver: "pgx", numbered: true, txLevel: sql.LevelReadCommitted}
	// SQLite is served through modernc.org/sqlite.
	SQLite = Dialect{name: "sqlite", driver: "sqlite", txLevel: sql.LevelDefault}
)

// DialectFor maps a database/sql driver name onto its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d Dialect) Name() string { return d.name }

// DriverName is the name registered with database/sql.
func (d Dialect) DriverName() string { return d.driver }

// IsPostgres reports whether Postgres-only constructs (xmax, SQLSTATE codes) apply.
func (d Dialect) IsPostgres() bool { return d.numbered }

// TxOptions returns the isolation used for write transactions. Nil means the
// driver default.
func (d Dialect) TxOptions() *sql.TxOptions {
	if d.txLevel == sql.LevelDefault {
		return nil
	}
	return &sql.TxOptions{Isolation: d.txLevel}
}

// Bind rewrites '?' placeholders into the dialect's form. Question marks inside
// single-quoted literals are left alone.
func (d Dialect) Bind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	inLiteral := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inLiteral = !inLiteral
			b.WriteByte(c)
		case c == '?' && !inLiteral:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Quote quotes an identifier, handling schema-qualified names.
func (d Dialect) Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
