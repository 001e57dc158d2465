package domain

import (
	"errors"
	"testing"
)

// A manager whose risk check re-enters the ledger must observe the settled
// state of the in-progress call, and its own nested mutations must rewind if
// the outer call ultimately fails.

func TestReentrantHookObservesSettledState(t *testing.T) {
	l, _, asset := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")

	var observed []int64
	asset.onChange = func(accountID, subID uint64, pre, post int64, manager, caller string) error {
		if accountID != b {
			return nil
		}
		// Re-enter through a public view: the from side of this leg must
		// already be committed.
		balance, err := l.GetBalance(a, "option", subID)
		if err != nil {
			return err
		}
		observed = append(observed, balance)
		checkHeldInvariant(t, l, a)
		return nil
	}

	if err := l.SubmitTransfer("alice", Transfer{From: a, To: b, Asset: "option", SubID: 0, Amount: 10}); err != nil {
		t.Fatalf("submit transfer: %v", err)
	}
	if len(observed) != 1 || observed[0] != -10 {
		t.Fatalf("hook observed %v, want settled from-balance -10", observed)
	}
}

func TestReentrantTransferInsideManagerHook(t *testing.T) {
	sink := &sinkStub{}
	l, mgr, _ := newTestLedger(t, sink)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")
	fees := mustCreate(t, l, "risk", "risk")
	sink.published = nil

	// The manager skims a fee into its own account when checking b.
	reentered := false
	mgr.onAdjust = func(accountID uint64, balances []Position, caller string) error {
		if accountID == b && !reentered {
			reentered = true
			return l.SubmitTransfer("risk", Transfer{From: b, To: fees, Asset: "option", SubID: 0, Amount: 1})
		}
		return nil
	}

	if err := l.SubmitTransfer("alice", Transfer{From: a, To: b, Asset: "option", SubID: 0, Amount: 10}); err != nil {
		t.Fatalf("submit transfer: %v", err)
	}

	if got := mustBalance(t, l, b, "option", 0); got != 9 {
		t.Fatalf("balance(b) = %d, want 9 after fee", got)
	}
	if got := mustBalance(t, l, fees, "option", 0); got != 1 {
		t.Fatalf("fee balance = %d, want 1", got)
	}
	// Both the outer and the nested call publish through one flush.
	if len(sink.published) != 1 {
		t.Fatalf("published %d batches, want 1", len(sink.published))
	}
	checkHeldInvariant(t, l, a)
	checkHeldInvariant(t, l, b)
	checkHeldInvariant(t, l, fees)
}

func TestOuterFailureRewindsNestedCall(t *testing.T) {
	l, mgr, _ := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")
	fees := mustCreate(t, l, "risk", "risk")

	// The manager first skims a fee from b, then rejects the adjustment that
	// triggered the check. The nested fee transfer must rewind too.
	rejected := false
	mgr.onAdjust = func(accountID uint64, balances []Position, caller string) error {
		if accountID == b && !rejected {
			rejected = true
			if err := l.SubmitTransfer("risk", Transfer{From: b, To: fees, Asset: "option", SubID: 0, Amount: 1}); err != nil {
				return err
			}
			return errors.New("under-margined")
		}
		return nil
	}

	if err := l.SubmitTransfer("alice", Transfer{From: a, To: b, Asset: "option", SubID: 0, Amount: 10}); err == nil {
		t.Fatal("expected outer call to fail")
	}

	for _, id := range []uint64{a, b, fees} {
		if got := mustBalance(t, l, id, "option", 0); got != 0 {
			t.Fatalf("balance(%d) = %d, want full rewind to 0", id, got)
		}
		checkHeldInvariant(t, l, id)
	}
}

func TestNestedFailureCanBeAbsorbedByHook(t *testing.T) {
	l, mgr, _ := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")

	// The manager attempts an impossible nested transfer, swallows the
	// failure, and approves. Only the nested call's effects rewind.
	mgr.onAdjust = func(accountID uint64, balances []Position, caller string) error {
		if accountID == b {
			_ = l.SubmitTransfer("risk", Transfer{From: b, To: 999, Asset: "option", SubID: 0, Amount: 1})
		}
		return nil
	}

	if err := l.SubmitTransfer("alice", Transfer{From: a, To: b, Asset: "option", SubID: 0, Amount: 10}); err != nil {
		t.Fatalf("outer call should survive an absorbed nested failure: %v", err)
	}
	if got := mustBalance(t, l, b, "option", 0); got != 10 {
		t.Fatalf("balance(b) = %d, want 10", got)
	}
}
