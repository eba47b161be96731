// Package store is the persistent dedup/reservation record of delivered and
// in-flight earthquake events.
//
// All coordination between racing process instances goes through TryClaim,
// which must stay a single atomic conditional upsert. Everything else is
// bookkeeping around that primitive.
package store

import (
	"context"
	"errors"
	"time"

	"quakebot/internal/quake"
)

// DefaultStaleness is how old an unreleased claim must be before any
// instance may take it over.
const DefaultStaleness = 3 * time.Minute

// ErrUnavailable marks transient store connectivity failures. Callers treat
// it as "could not process this event this cycle", not as corruption.
var ErrUnavailable = errors.New("store unavailable")

// Store is the dedup/reservation contract.
//
// Terminal records (SentAt set) are never reclaimed, re-rendered or deleted.
type Store interface {
	// IsDelivered reports whether a terminal record exists for id.
	IsDelivered(ctx context.Context, id string) (bool, error)

	// DeliveredIDs bulk-loads all terminal ids, to avoid a store round-trip
	// per candidate in the common case.
	DeliveredIDs(ctx context.Context) (map[string]struct{}, error)

	// DeliveredCount returns the number of terminal records.
	DeliveredCount(ctx context.Context) (int64, error)

	// TryClaim atomically claims id at now. It succeeds iff no record exists
	// (creating a claim-only one), or a non-terminal record exists whose
	// claim is absent or older than the staleness window. It fails when a
	// live claim or a terminal record already exists.
	TryClaim(ctx context.Context, id string, now time.Time) (bool, error)

	// Commit upserts the full final record with SentAt = now. Idempotent.
	Commit(ctx context.Context, ev quake.Event, now time.Time) error

	// ReleaseClaim deletes the record for id only if it is not terminal.
	ReleaseClaim(ctx context.Context, id string) error

	Close() error
}

// Config configures the store backend.
type Config struct {
	// Path is the SQLite database file.
	Path string
	// Staleness overrides DefaultStaleness (0 keeps the default).
	Staleness time.Duration
	// BusyTimeout is the SQLite busy handler timeout; 0 means default.
	BusyTimeout time.Duration
}
