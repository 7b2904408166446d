// Package libsql implements the contentstore Driver on libsql, covering
// Turso-hosted databases and local libsql files.
package libsql

import (
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql" // register the libsql driver as "libsql"

	"github.com/papercomputeco/engram/pkg/contentstore"
	"github.com/papercomputeco/engram/pkg/contentstore/sqlite"
)

// Driver implements contentstore.Driver against a libsql database. The
// dialect matches SQLite, so the SQLite driver does the SQL work over a
// libsql connection.
type Driver struct {
	*sqlite.Driver
}

// NewDriver creates a new libsql-backed driver. The connStr is a libsql
// URL, e.g. "libsql://dbname.turso.io?authToken=..." or "file:engram.db"
// for a local database.
func NewDriver(connStr string) (*Driver, error) {
	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	inner, err := sqlite.NewDriverWithDB(db)
	if err != nil {
		return nil, err
	}

	return &Driver{Driver: inner}, nil
}

// Ensure Driver implements contentstore.Driver
var _ contentstore.Driver = (*Driver)(nil)
