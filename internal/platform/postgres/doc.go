// Package postgres implements the persistence interfaces against
// PostgreSQL via database/sql and the pgx driver. The task store's
// conditional updates are the subsystem's only cross-process coordination
// primitive.
package postgres
