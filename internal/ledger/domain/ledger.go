package domain

import (
	"fmt"
)

// HeldAsset identifies one non-zero position of an account.
type HeldAsset struct {
	Asset string
	SubID uint64
}

// Position is a held asset together with its current balance.
type Position struct {
	Asset   string
	SubID   uint64
	Balance int64
}

type balanceKey struct {
	asset string
	subID uint64
}

// balanceRecord stores one signed balance. order is the record's position in
// the account's held-asset list and is meaningful iff balance != 0; it is
// reset to 0 when the balance drains.
type balanceRecord struct {
	balance int64
	order   int
}

type account struct {
	owner    string
	manager  string
	delegate string // full-allowance delegate, empty when unset
	balances map[balanceKey]*balanceRecord
	held     []HeldAsset
}

type allowancePair struct {
	positive int64
	negative int64
}

type assetAllowanceKey struct {
	account  uint64
	delegate string
	asset    string
}

type subIDAllowanceKey struct {
	account  uint64
	delegate string
	asset    string
	subID    uint64
}

// Ledger owns all account, balance and allowance tables. It is the single
// mutable context for the ledger core; external capabilities never mutate its
// structures directly, they only call back through the public API.
//
// Account id 0 is reserved and never issued, so it can safely act as an
// "absent" sentinel for callers.
type Ledger struct {
	lastID   uint64
	accounts map[uint64]*account

	assets   map[string]Asset
	managers map[string]Manager

	// operators maps owner identity -> operator identity -> approved.
	operators map[string]map[string]bool

	assetAllowances map[assetAllowanceKey]allowancePair
	subIDAllowances map[subIDAllowanceKey]allowancePair

	journal []func()
	pending []Event
	depth   int
	sink    EventSink
}

// New creates an empty ledger. The sink may be nil, in which case events are
// discarded after a successful call.
func New(sink EventSink) *Ledger {
	return &Ledger{
		accounts:        make(map[uint64]*account),
		assets:          make(map[string]Asset),
		managers:        make(map[string]Manager),
		operators:       make(map[string]map[string]bool),
		assetAllowances: make(map[assetAllowanceKey]allowancePair),
		subIDAllowances: make(map[subIDAllowanceKey]allowancePair),
		sink:            sink,
	}
}

// RegisterAsset makes an asset capability available for balance keys.
func (l *Ledger) RegisterAsset(a Asset) error {
	if a == nil || a.ID() == "" {
		return fmt.Errorf("asset capability with a non-empty id is required")
	}
	if _, ok := l.assets[a.ID()]; ok {
		return fmt.Errorf("asset %q is already registered", a.ID())
	}
	l.assets[a.ID()] = a
	return nil
}

// RegisterManager makes a manager capability available for accounts.
func (l *Ledger) RegisterManager(m Manager) error {
	if m == nil || m.ID() == "" {
		return fmt.Errorf("manager capability with a non-empty id is required")
	}
	if _, ok := l.managers[m.ID()]; ok {
		return fmt.Errorf("manager %q is already registered", m.ID())
	}
	l.managers[m.ID()] = m
	return nil
}

type savepoint struct {
	journal int
	pending int
}

// begin opens a (possibly nested) atomic scope.
func (l *Ledger) begin() savepoint {
	l.depth++
	return savepoint{journal: len(l.journal), pending: len(l.pending)}
}

// finish closes the scope opened by begin. On error it rewinds every mutation
// recorded since the savepoint; on outermost success it publishes buffered
// events and clears the journal. A sink failure counts as a call failure and
// rewinds the whole call.
func (l *Ledger) finish(sp savepoint, errp *error) {
	if *errp == nil && l.depth == 1 && l.sink != nil && len(l.pending) > 0 {
		events := make([]Event, len(l.pending))
		copy(events, l.pending)
		if err := l.sink.Publish(events); err != nil {
			*errp = fmt.Errorf("publish ledger events: %w", err)
		}
	}
	if *errp != nil {
		for i := len(l.journal) - 1; i >= sp.journal; i-- {
			l.journal[i]()
		}
		l.journal = l.journal[:sp.journal]
		l.pending = l.pending[:sp.pending]
	} else if l.depth == 1 {
		l.journal = l.journal[:0]
		l.pending = l.pending[:0]
	}
	l.depth--
}

// record registers the inverse of a mutation with the undo journal.
func (l *Ledger) record(undo func()) {
	l.journal = append(l.journal, undo)
}

// emit buffers an event for publication at the end of the outermost call.
func (l *Ledger) emit(evt Event) {
	l.pending = append(l.pending, evt)
}

func (l *Ledger) account(id uint64) (*account, error) {
	acct, ok := l.accounts[id]
	if !ok {
		return nil, accountNotFound(id)
	}
	return acct, nil
}

func (l *Ledger) asset(id string) (Asset, error) {
	a, ok := l.assets[id]
	if !ok {
		return nil, ErrUnknownAsset
	}
	return a, nil
}

// isAuthorized reports whether the caller holds blanket rights over the
// account: its owner, an approved operator of that owner, the account's
// full-allowance delegate, or the account's current manager.
func (l *Ledger) isAuthorized(acct *account, caller string) bool {
	if caller == "" {
		return false
	}
	if caller == acct.owner || caller == acct.delegate || caller == acct.manager {
		return true
	}
	return l.operators[acct.owner][caller]
}

// positions returns the account's non-zero balances in held-asset order.
func (l *Ledger) positions(acct *account) []Position {
	out := make([]Position, len(acct.held))
	for i, h := range acct.held {
		out[i] = Position{
			Asset:   h.Asset,
			SubID:   h.SubID,
			Balance: acct.balances[balanceKey{asset: h.Asset, subID: h.SubID}].balance,
		}
	}
	return out
}

// riskCheck asks the account's current manager to validate its settled
// balance set.
func (l *Ledger) riskCheck(id uint64, caller string) error {
	acct, err := l.account(id)
	if err != nil {
		return err
	}
	mgr, ok := l.managers[acct.manager]
	if !ok {
		return ErrUnknownManager
	}
	if err := mgr.OnAdjustment(id, l.positions(acct), caller); err != nil {
		return managerRejected(id, err)
	}
	return nil
}

// riskCheckAll checks each id once, in order.
func (l *Ledger) riskCheckAll(ids []uint64, caller string) error {
	for _, id := range ids {
		if err := l.riskCheck(id, caller); err != nil {
			return err
		}
	}
	return nil
}

// appendUnique adds id to ids unless already present, preserving order of
// first appearance.
func appendUnique(ids []uint64, id uint64) []uint64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
