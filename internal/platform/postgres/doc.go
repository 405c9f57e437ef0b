// Package postgres provides PostgreSQL implementations of the store contracts,
// together with the embedded schema migrations they depend on.
// Connections use the pgx driver through database/sql.
package postgres
