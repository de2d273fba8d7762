// Package database holds the connection helpers and timeout conventions
// shared by the guard's Postgres and Redis backed stores.
package database

import (
	"context"
	"time"
)

const (
	// DefaultQueryTimeout bounds session and subject lookups on the request path.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds inserts, updates and deletes.
	DefaultWriteTimeout = 10 * time.Second

	// MigrationTimeout bounds schema migrations at startup.
	MigrationTimeout = 2 * time.Minute
)

// QueryContext creates a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext creates a context with DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}
