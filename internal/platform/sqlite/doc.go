// Package sqlite provides a single-file implementation of the history store
// for installations without a PostgreSQL server.
package sqlite
