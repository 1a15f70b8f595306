package db

import (
	"database/sql"

	libdb "gasledger/backend/libs/db"
)

// NewPostgres returns shared DB connection.
func NewPostgres(dsn string) (*sql.DB, error) {
	return libdb.NewPostgresDB(dsn)
}

// NewSQLite opens the single-file statistics database.
func NewSQLite(path string) (*sql.DB, error) {
	return libdb.NewSQLiteDB(path)
}
