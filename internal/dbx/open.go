package dbx

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open opens a pool for driver/dsn and returns it with its dialect.
func Open(driver, dsn string) (*sql.DB, Dialect, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, Dialect{}, err
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("db open error: %w", err)
	}

	if d == SQLite {
		// one writer at a time; avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	}

	return db, d, nil
}
