package engine

import (
	"database/sql"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// Open opens a SQLite database using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./db.sqlite". For in-memory
// databases, pass ":memory:". Stores that use the vss virtual table should
// prefer a file path (or a shared-cache memory DSN) so the table's internal
// queries can run on a second connection.
func Open(dsn string) (*sql.DB, error) { return sql.Open("sqlite", dsn) }
