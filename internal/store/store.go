// Package store provides durable key-value persistence for session artifacts.
package store

import (
	"context"
	"fmt"
)

// Keys under which session artifacts are persisted.
const (
	KeyChallengeToken       = "token"
	KeyAccessToken          = "access_token"
	KeyProspectID           = "prospect_id"
	KeyStartDate            = "start_date"
	KeyCumulativeProduction = "cumulative_production"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bbolt"
)

// SessionStore defines durable string key-value storage that survives
// process restarts.
type SessionStore interface {
	// Get returns the value stored under key. The bool is false when the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// SetMany stores all values in a single transaction: either every key
	// is written or none is.
	SetMany(ctx context.Context, values map[string]string) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying database.
	Close() error
}

// Open creates the SessionStore for the named backend.
func Open(backend, path string) (SessionStore, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLite(path)
	case BackendBolt:
		return NewBolt(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

var (
	_ SessionStore = (*SQLiteStore)(nil)
	_ SessionStore = (*BoltStore)(nil)
)
