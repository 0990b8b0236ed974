// Package postgres provides the PostgreSQL implementation of the history
// store defined in internal/store. It opens connections through the pgx
// database/sql driver, maps driver errors onto store errors and owns the
// goose migrations of the history schema, embedded in the binary.
package postgres
