// Package storage defines the persistence interfaces for the ledger service.
//
// The ledger itself is an in-memory structure; storage keeps two durable
// views of it: an append-only event log for observability, and a state
// snapshot that lets a restarted service pick up where it left off.
package storage

import (
	"context"
	"time"

	"github.com/quantfold/marginledger/internal/ledger/domain"
)

// Event is one persisted ledger event with its log position.
type Event struct {
	Sequence   int64
	Type       domain.EventType
	Account    uint64
	Owner      string
	Manager    string
	OldManager string
	Asset      string
	SubID      uint64
	Pre        int64
	Post       int64
	Caller     string
	CreatedAt  time.Time
}

// EventStore appends and reads the ledger event log.
type EventStore interface {
	AppendEvents(ctx context.Context, events []domain.Event) error
	// ListEvents returns up to limit events with a sequence greater than
	// afterSequence, in log order.
	ListEvents(ctx context.Context, afterSequence int64, limit int) ([]Event, error)
}

// StateStore persists and restores ledger snapshots.
type StateStore interface {
	SaveState(ctx context.Context, snap domain.Snapshot) error
	// LoadState returns the persisted snapshot; a store that has never been
	// written returns an empty snapshot.
	LoadState(ctx context.Context) (domain.Snapshot, error)
}

// Store is the full persistence surface the service depends on.
type Store interface {
	EventStore
	StateStore
	Close() error
}
