// Package service wires the in-memory ledger to durable storage.
//
// The ledger core is single-threaded by construction; the service serializes
// calls with a mutex, collects the events each successful call publishes, and
// persists both the event batch and a fresh state snapshot before returning.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantfold/marginledger/internal/ledger/domain"
	"github.com/quantfold/marginledger/internal/ledger/storage"
)

// eventBuffer collects the events of one top-level ledger call so the service
// can persist them after the call commits.
type eventBuffer struct {
	events []domain.Event
}

func (b *eventBuffer) Publish(events []domain.Event) error {
	b.events = append(b.events, events...)
	return nil
}

func (b *eventBuffer) drain() []domain.Event {
	events := b.events
	b.events = nil
	return events
}

// Service exposes the ledger operations with persistence and serialization.
type Service struct {
	mu     sync.Mutex
	ledger *domain.Ledger
	store  storage.Store
	buffer *eventBuffer
}

// New builds a service around a fresh ledger, registers the given
// capabilities, and restores any state the store holds.
func New(ctx context.Context, store storage.Store, managers []domain.Manager, assets []domain.Asset) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	buffer := &eventBuffer{}
	ledger := domain.New(buffer)
	for _, manager := range managers {
		if err := ledger.RegisterManager(manager); err != nil {
			return nil, err
		}
	}
	for _, asset := range assets {
		if err := ledger.RegisterAsset(asset); err != nil {
			return nil, err
		}
	}

	snap, err := store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger state: %w", err)
	}
	if snap.LastID > 0 || len(snap.Accounts) > 0 {
		if err := ledger.Restore(snap); err != nil {
			return nil, fmt.Errorf("restore ledger state: %w", err)
		}
	}
	return &Service{ledger: ledger, store: store, buffer: buffer}, nil
}

// mutate runs one ledger call under the lock and persists its outcome.
func (s *Service) mutate(ctx context.Context, op func(*domain.Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := op(s.ledger); err != nil {
		s.buffer.drain()
		return err
	}
	events := s.buffer.drain()
	if err := s.store.AppendEvents(ctx, events); err != nil {
		return fmt.Errorf("persist ledger events: %w", err)
	}
	if err := s.store.SaveState(ctx, s.ledger.Snapshot()); err != nil {
		return fmt.Errorf("persist ledger state: %w", err)
	}
	return nil
}

// CreateAccount opens a new account and returns its id.
func (s *Service) CreateAccount(ctx context.Context, owner, manager string) (uint64, error) {
	var id uint64
	err := s.mutate(ctx, func(l *domain.Ledger) error {
		var err error
		id, err = l.CreateAccount(owner, manager)
		return err
	})
	return id, err
}

// BurnAccounts removes the given empty accounts.
func (s *Service) BurnAccounts(ctx context.Context, caller string, ids []uint64) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.BurnAccounts(caller, ids)
	})
}

// ChangeManager moves an account to a new manager capability.
func (s *Service) ChangeManager(ctx context.Context, caller string, id uint64, newManager string) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.ChangeManager(caller, id, newManager)
	})
}

// TransferOwnership assigns a new owner and clears the full delegate.
func (s *Service) TransferOwnership(ctx context.Context, caller string, id uint64, newOwner string) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.TransferOwnership(caller, id, newOwner)
	})
}

// SetOperator grants or revokes an identity-wide operator.
func (s *Service) SetOperator(ctx context.Context, caller, operator string, approved bool) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.SetOperator(caller, operator, approved)
	})
}

// SetFullAllowance sets the account's full delegate.
func (s *Service) SetFullAllowance(ctx context.Context, caller string, id uint64, delegate string) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.SetFullAllowance(caller, id, delegate)
	})
}

// SetAssetAllowances overwrites asset-level allowances on an account.
func (s *Service) SetAssetAllowances(ctx context.Context, caller string, id uint64, updates []domain.AssetAllowance) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.SetAssetAllowances(caller, id, updates)
	})
}

// SetSubIDAllowances overwrites sub-identifier-level allowances on an account.
func (s *Service) SetSubIDAllowances(ctx context.Context, caller string, id uint64, updates []domain.SubIDAllowance) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.SetSubIDAllowances(caller, id, updates)
	})
}

// SubmitTransfer executes one transfer leg atomically.
func (s *Service) SubmitTransfer(ctx context.Context, caller string, transfer domain.Transfer) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.SubmitTransfer(caller, transfer)
	})
}

// SubmitTransfers executes a batch of transfer legs atomically.
func (s *Service) SubmitTransfers(ctx context.Context, caller string, transfers []domain.Transfer) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.SubmitTransfers(caller, transfers)
	})
}

// TransferAll moves every position from one account to another.
func (s *Service) TransferAll(ctx context.Context, caller string, from, to uint64) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.TransferAll(caller, from, to)
	})
}

// Merge drains several source accounts into a target.
func (s *Service) Merge(ctx context.Context, caller string, target uint64, sources []uint64) error {
	return s.mutate(ctx, func(l *domain.Ledger) error {
		return l.Merge(caller, target, sources)
	})
}

// Split carves positions out of a source account into a fresh one and
// returns the new account id.
func (s *Service) Split(ctx context.Context, caller string, source uint64, legs []domain.Transfer, newOwner string) (uint64, error) {
	var id uint64
	err := s.mutate(ctx, func(l *domain.Ledger) error {
		var err error
		id, err = l.Split(caller, source, legs, newOwner)
		return err
	})
	return id, err
}

// AdjustBalance applies a unilateral balance change by a manager or asset
// capability and returns the post balance.
func (s *Service) AdjustBalance(ctx context.Context, caller string, adj domain.Adjustment) (int64, error) {
	var post int64
	err := s.mutate(ctx, func(l *domain.Ledger) error {
		var err error
		post, err = l.AdjustBalance(caller, adj)
		return err
	})
	return post, err
}

// Balance reads one balance slot.
func (s *Service) Balance(ctx context.Context, id uint64, asset string, subID uint64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.GetBalance(id, asset, subID)
}

// AccountBalances reads all non-zero positions of an account in held order.
func (s *Service) AccountBalances(ctx context.Context, id uint64) ([]domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.GetAccountBalances(id)
}

// HeldAssets reads the held-asset index of an account.
func (s *Service) HeldAssets(ctx context.Context, id uint64) ([]domain.HeldAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.HeldAssets(id)
}

// Owner reads the owner of an account.
func (s *Service) Owner(ctx context.Context, id uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Owner(id)
}

// ManagerOf reads the manager of an account.
func (s *Service) ManagerOf(ctx context.Context, id uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.ManagerOf(id)
}

// Events reads a page of the persisted event log.
func (s *Service) Events(ctx context.Context, afterSequence int64, limit int) ([]storage.Event, error) {
	return s.store.ListEvents(ctx, afterSequence, limit)
}
