package domain

import "testing"

// managerStub records risk checks and delegates to optional overrides.
type managerStub struct {
	id         string
	adjusted   []uint64
	onAdjust   func(accountID uint64, balances []Position, caller string) error
	onApproval func(accountID uint64, newManager string) error
}

func (m *managerStub) ID() string { return m.id }

func (m *managerStub) OnAdjustment(accountID uint64, balances []Position, caller string) error {
	m.adjusted = append(m.adjusted, accountID)
	if m.onAdjust != nil {
		return m.onAdjust(accountID, balances, caller)
	}
	return nil
}

func (m *managerStub) OnManagerChangeApproval(accountID uint64, newManager string) error {
	if m.onApproval != nil {
		return m.onApproval(accountID, newManager)
	}
	return nil
}

type balanceChange struct {
	account uint64
	subID   uint64
	pre     int64
	post    int64
	manager string
	caller  string
}

// assetStub records balance-change and manager-change hook invocations.
type assetStub struct {
	id       string
	changes  []balanceChange
	notified []uint64
	onChange func(accountID, subID uint64, pre, post int64, manager, caller string) error
	onNotify func(accountID uint64, newManager string) error
}

func (a *assetStub) ID() string { return a.id }

func (a *assetStub) OnBalanceChange(accountID, subID uint64, pre, post int64, manager, caller string) error {
	a.changes = append(a.changes, balanceChange{
		account: accountID, subID: subID, pre: pre, post: post, manager: manager, caller: caller,
	})
	if a.onChange != nil {
		return a.onChange(accountID, subID, pre, post, manager, caller)
	}
	return nil
}

func (a *assetStub) OnManagerChangeNotify(accountID uint64, newManager string) error {
	a.notified = append(a.notified, accountID)
	if a.onNotify != nil {
		return a.onNotify(accountID, newManager)
	}
	return nil
}

type sinkStub struct {
	published [][]Event
	err       error
}

func (s *sinkStub) Publish(events []Event) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, events)
	return nil
}

// newTestLedger builds a ledger with one registered manager ("risk") and one
// registered asset ("option").
func newTestLedger(t *testing.T, sink EventSink) (*Ledger, *managerStub, *assetStub) {
	t.Helper()
	l := New(sink)
	mgr := &managerStub{id: "risk"}
	asset := &assetStub{id: "option"}
	if err := l.RegisterManager(mgr); err != nil {
		t.Fatalf("register manager: %v", err)
	}
	if err := l.RegisterAsset(asset); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	return l, mgr, asset
}

// mustCreate creates an account and fails the test on error.
func mustCreate(t *testing.T, l *Ledger, owner, manager string) uint64 {
	t.Helper()
	id, err := l.CreateAccount(owner, manager)
	if err != nil {
		t.Fatalf("create account for %s: %v", owner, err)
	}
	return id
}

// mustBalance reads a balance and fails the test on error.
func mustBalance(t *testing.T, l *Ledger, id uint64, asset string, subID uint64) int64 {
	t.Helper()
	balance, err := l.GetBalance(id, asset, subID)
	if err != nil {
		t.Fatalf("get balance of account %d: %v", id, err)
	}
	return balance
}

// checkHeldInvariant verifies that a record is in the held-asset list iff its
// balance is non-zero and that every stored order matches the actual slot.
func checkHeldInvariant(t *testing.T, l *Ledger, id uint64) {
	t.Helper()
	acct, err := l.account(id)
	if err != nil {
		t.Fatalf("account %d: %v", id, err)
	}
	seen := make(map[balanceKey]bool, len(acct.held))
	for i, h := range acct.held {
		key := balanceKey{asset: h.Asset, subID: h.SubID}
		if seen[key] {
			t.Fatalf("account %d held list repeats %s/%d", id, h.Asset, h.SubID)
		}
		seen[key] = true
		rec, ok := acct.balances[key]
		if !ok {
			t.Fatalf("account %d holds %s/%d without a balance record", id, h.Asset, h.SubID)
		}
		if rec.balance == 0 {
			t.Fatalf("account %d holds %s/%d with zero balance", id, h.Asset, h.SubID)
		}
		if rec.order != i {
			t.Fatalf("account %d record %s/%d order = %d, want %d", id, h.Asset, h.SubID, rec.order, i)
		}
	}
	for key, rec := range acct.balances {
		if rec.balance != 0 && !seen[key] {
			t.Fatalf("account %d balance %s/%d missing from held list", id, key.asset, key.subID)
		}
	}
}
