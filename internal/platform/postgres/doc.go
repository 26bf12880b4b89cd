// Package postgres implements the store interfaces on PostgreSQL through the
// pgx database/sql driver. It also owns the embedded schema migrations that
// cmd/server applies with goose.
package postgres
