// Package postgres provides PostgreSQL-specific implementations for the data
// storage interfaces defined in the internal/store and internal/task packages.
// It handles query execution, error mapping and the embedded goose migrations
// that create the schema.
package postgres
