package domain

import (
	"errors"
	"testing"
)

func TestBatchRiskChecksEachAccountOnce(t *testing.T) {
	l, mgr, _ := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")
	c := mustCreate(t, l, "alice", "risk")

	// Three legs touching {a,b}, {b,c}, {c,a}: every account appears twice
	// but must be checked exactly once.
	legs := []Transfer{
		{From: a, To: b, Asset: "option", SubID: 0, Amount: 1},
		{From: b, To: c, Asset: "option", SubID: 0, Amount: 2},
		{From: c, To: a, Asset: "option", SubID: 0, Amount: 3},
	}
	mgr.adjusted = nil
	if err := l.SubmitTransfers("alice", legs); err != nil {
		t.Fatalf("submit transfers: %v", err)
	}

	want := []uint64{a, b, c}
	if len(mgr.adjusted) != len(want) {
		t.Fatalf("risk checked %v, want %v", mgr.adjusted, want)
	}
	for i, id := range want {
		if mgr.adjusted[i] != id {
			t.Fatalf("risk check order %v, want first-appearance order %v", mgr.adjusted, want)
		}
	}
}

func TestBatchConservation(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")
	c := mustCreate(t, l, "alice", "risk")

	legs := []Transfer{
		{From: a, To: b, Asset: "option", SubID: 1, Amount: 100},
		{From: b, To: c, Asset: "option", SubID: 1, Amount: 40},
		{From: c, To: a, Asset: "option", SubID: 2, Amount: -5},
	}
	if err := l.SubmitTransfers("alice", legs); err != nil {
		t.Fatalf("submit transfers: %v", err)
	}

	for _, subID := range []uint64{1, 2} {
		var sum int64
		for _, id := range []uint64{a, b, c} {
			sum += mustBalance(t, l, id, "option", subID)
		}
		if sum != 0 {
			t.Fatalf("sub-id %d balances sum to %d, want 0", subID, sum)
		}
	}
}

func TestManagerRejectionRollsBackWholeBatch(t *testing.T) {
	sink := &sinkStub{}
	l, mgr, _ := newTestLedger(t, sink)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")
	sink.published = nil

	mgr.onAdjust = func(accountID uint64, balances []Position, caller string) error {
		if accountID == b {
			return errors.New("under-margined")
		}
		return nil
	}

	err := l.SubmitTransfers("alice", []Transfer{
		{From: a, To: b, Asset: "option", SubID: 0, Amount: 10},
	})
	if err == nil {
		t.Fatal("expected manager rejection to fail the batch")
	}

	if got := mustBalance(t, l, a, "option", 0); got != 0 {
		t.Fatalf("balance(a) = %d, want rollback to 0", got)
	}
	if got := mustBalance(t, l, b, "option", 0); got != 0 {
		t.Fatalf("balance(b) = %d, want rollback to 0", got)
	}
	checkHeldInvariant(t, l, a)
	checkHeldInvariant(t, l, b)
	if len(sink.published) != 0 {
		t.Fatalf("failed call published %d event batches, want none", len(sink.published))
	}
}

func TestAssetRejectionRollsBackEarlierLegs(t *testing.T) {
	l, _, asset := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")

	calls := 0
	asset.onChange = func(accountID, subID uint64, pre, post int64, manager, caller string) error {
		calls++
		if calls == 3 { // first leg applied cleanly, second leg's from side fails
			return errors.New("mint limit reached")
		}
		return nil
	}

	err := l.SubmitTransfers("alice", []Transfer{
		{From: a, To: b, Asset: "option", SubID: 1, Amount: 10},
		{From: a, To: b, Asset: "option", SubID: 2, Amount: 20},
	})
	if err == nil {
		t.Fatal("expected asset rejection to fail the batch")
	}
	for _, subID := range []uint64{1, 2} {
		if got := mustBalance(t, l, a, "option", subID); got != 0 {
			t.Fatalf("balance(a, %d) = %d, want rollback to 0", subID, got)
		}
	}
	checkHeldInvariant(t, l, a)
	checkHeldInvariant(t, l, b)
}

func TestFailedLegRestoresAllowances(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")
	c := mustCreate(t, l, "bob", "risk")

	if err := l.SetAssetAllowances("alice", a, []AssetAllowance{
		{Delegate: "dave", Asset: "option", Negative: 100},
	}); err != nil {
		t.Fatalf("set allowances: %v", err)
	}
	if err := l.SetAssetAllowances("alice", b, []AssetAllowance{
		{Delegate: "dave", Asset: "option", Positive: 100},
	}); err != nil {
		t.Fatalf("set allowances: %v", err)
	}

	// Leg 1 consumes dave's allowances; leg 2 fails on account c.
	err := l.SubmitTransfers("dave", []Transfer{
		{From: a, To: b, Asset: "option", SubID: 0, Amount: 60},
		{From: c, To: b, Asset: "option", SubID: 0, Amount: 1},
	})
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected insufficient allowance on c, got %v", err)
	}

	if _, neg, _ := l.AssetAllowanceOf(a, "dave", "option"); neg != 100 {
		t.Fatalf("negative allowance on a = %d, want restored 100", neg)
	}
	if pos, _, _ := l.AssetAllowanceOf(b, "dave", "option"); pos != 100 {
		t.Fatalf("positive allowance on b = %d, want restored 100", pos)
	}
}

func TestTransferRejectsSelfAndUnknownParties(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")

	if err := l.SubmitTransfer("alice", Transfer{From: a, To: a, Asset: "option", Amount: 1}); !errors.Is(err, ErrInvalidTransfer) {
		t.Fatalf("expected invalid transfer, got %v", err)
	}
	if err := l.SubmitTransfer("alice", Transfer{From: a, To: 42, Asset: "option", Amount: 1}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
	if err := l.SubmitTransfer("alice", Transfer{From: a, To: a + 1000, Asset: "ghost", Amount: 1}); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected account not found for destination, got %v", err)
	}
}

func TestTransferAllMovesEveryPosition(t *testing.T) {
	l, mgr, _ := newTestLedger(t, nil)
	from := mustCreate(t, l, "alice", "risk")
	to := mustCreate(t, l, "alice", "risk")

	for _, adj := range []Adjustment{
		{Account: from, Asset: "option", SubID: 1, Amount: 10},
		{Account: from, Asset: "option", SubID: 2, Amount: -20},
		{Account: from, Asset: "option", SubID: 3, Amount: 30},
	} {
		if _, err := l.AdjustBalance("risk", adj); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
	mgr.adjusted = nil

	if err := l.TransferAll("alice", from, to); err != nil {
		t.Fatalf("transfer all: %v", err)
	}

	held, _ := l.HeldAssets(from)
	if len(held) != 0 {
		t.Fatalf("source still holds %v", held)
	}
	if got := mustBalance(t, l, to, "option", 2); got != -20 {
		t.Fatalf("negative position moved as %d, want -20", got)
	}
	if len(mgr.adjusted) != 2 {
		t.Fatalf("risk checked %v, want both accounts once", mgr.adjusted)
	}
	checkHeldInvariant(t, l, from)
	checkHeldInvariant(t, l, to)
}

func TestTransferAllRequiresBlanketRightsOnBothAccounts(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	from := mustCreate(t, l, "alice", "risk")
	to := mustCreate(t, l, "bob", "risk")

	// An asset-level allowance is not enough for a whole-account move.
	if err := l.SetAssetAllowances("bob", to, []AssetAllowance{
		{Delegate: "alice", Asset: "option", Positive: 1 << 40},
	}); err != nil {
		t.Fatalf("set allowances: %v", err)
	}
	if err := l.TransferAll("alice", from, to); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestMergeDrainsSourcesAndChecksEveryAccount(t *testing.T) {
	l, mgr, _ := newTestLedger(t, nil)
	target := mustCreate(t, l, "alice", "risk")
	s1 := mustCreate(t, l, "alice", "risk")
	s2 := mustCreate(t, l, "alice", "risk")

	for _, adj := range []Adjustment{
		{Account: s1, Asset: "option", SubID: 1, Amount: 10},
		{Account: s2, Asset: "option", SubID: 1, Amount: 5},
		{Account: s2, Asset: "option", SubID: 2, Amount: 7},
	} {
		if _, err := l.AdjustBalance("risk", adj); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
	mgr.adjusted = nil

	if err := l.Merge("alice", target, []uint64{s1, s2}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	if got := mustBalance(t, l, target, "option", 1); got != 15 {
		t.Fatalf("merged balance = %d, want 15", got)
	}
	for _, source := range []uint64{s1, s2} {
		held, _ := l.HeldAssets(source)
		if len(held) != 0 {
			t.Fatalf("source %d still holds %v", source, held)
		}
	}
	// Sources are checked after draining, the target last.
	want := []uint64{s1, s2, target}
	if len(mgr.adjusted) != len(want) {
		t.Fatalf("risk checks %v, want %v", mgr.adjusted, want)
	}
	for i := range want {
		if mgr.adjusted[i] != want[i] {
			t.Fatalf("risk check order %v, want %v", mgr.adjusted, want)
		}
	}
}

func TestSplitCreatesAccountAndRedirectsLegs(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	nextManager := &managerStub{id: "risk-next"}
	if err := l.RegisterManager(nextManager); err != nil {
		t.Fatalf("register manager: %v", err)
	}
	source := mustCreate(t, l, "alice", "risk")

	for _, adj := range []Adjustment{
		{Account: source, Asset: "option", SubID: 1, Amount: 100},
		{Account: source, Asset: "option", SubID: 2, Amount: 60},
	} {
		if _, err := l.AdjustBalance("risk", adj); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}

	id, err := l.Split("alice", source, []Transfer{
		{Asset: "option", SubID: 1, Amount: 40},
	}, "bob")
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if got := mustBalance(t, l, id, "option", 1); got != 40 {
		t.Fatalf("split balance = %d, want 40", got)
	}
	if got := mustBalance(t, l, source, "option", 1); got != 60 {
		t.Fatalf("source balance = %d, want 60", got)
	}
	owner, _ := l.Owner(id)
	if owner != "bob" {
		t.Fatalf("new owner = %q, want %q", owner, "bob")
	}
	manager, _ := l.ManagerOf(id)
	if manager != "risk" {
		t.Fatalf("new account manager = %q, want source manager %q", manager, "risk")
	}
}

func TestSplitToSelfKeepsOwnership(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	source := mustCreate(t, l, "alice", "risk")
	if _, err := l.AdjustBalance("risk", Adjustment{Account: source, Asset: "option", SubID: 1, Amount: 10}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	id, err := l.Split("alice", source, []Transfer{
		{Asset: "option", SubID: 1, Amount: 10},
	}, "alice")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	owner, _ := l.Owner(id)
	if owner != "alice" {
		t.Fatalf("owner = %q, want caller", owner)
	}
}

func TestSplitFailureDiscardsNewAccount(t *testing.T) {
	l, mgr, _ := newTestLedger(t, nil)
	source := mustCreate(t, l, "alice", "risk")
	if _, err := l.AdjustBalance("risk", Adjustment{Account: source, Asset: "option", SubID: 1, Amount: 10}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	lastBefore := l.LastID()

	mgr.onAdjust = func(uint64, []Position, string) error { return errors.New("under-margined") }
	if _, err := l.Split("alice", source, []Transfer{
		{Asset: "option", SubID: 1, Amount: 10},
	}, "bob"); err == nil {
		t.Fatal("expected split to fail")
	}

	if l.LastID() != lastBefore {
		t.Fatalf("last id = %d, want rollback to %d", l.LastID(), lastBefore)
	}
	if _, err := l.Owner(lastBefore + 1); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected provisional account to be discarded, got %v", err)
	}
	if got := mustBalance(t, l, source, "option", 1); got != 10 {
		t.Fatalf("source balance = %d, want untouched 10", got)
	}
}

func TestAdjustBalanceRestrictedToManagerOrAsset(t *testing.T) {
	l, _, _ := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")

	// Even the owner may not use the privileged path.
	if _, err := l.AdjustBalance("alice", Adjustment{Account: a, Asset: "option", SubID: 0, Amount: 5}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for owner, got %v", err)
	}

	post, err := l.AdjustBalance("risk", Adjustment{Account: a, Asset: "option", SubID: 0, Amount: 5})
	if err != nil {
		t.Fatalf("manager adjustment: %v", err)
	}
	if post != 5 {
		t.Fatalf("post = %d, want 5", post)
	}

	post, err = l.AdjustBalance("option", Adjustment{Account: a, Asset: "option", SubID: 0, Amount: -2})
	if err != nil {
		t.Fatalf("asset adjustment: %v", err)
	}
	if post != 3 {
		t.Fatalf("post = %d, want 3", post)
	}
}

func TestAdjustBalanceReportsPreAndPostToAssetHook(t *testing.T) {
	l, _, asset := newTestLedger(t, nil)
	a := mustCreate(t, l, "alice", "risk")

	if _, err := l.AdjustBalance("risk", Adjustment{Account: a, Asset: "option", SubID: 9, Amount: 30}); err != nil {
		t.Fatalf("first adjustment: %v", err)
	}
	if _, err := l.AdjustBalance("risk", Adjustment{Account: a, Asset: "option", SubID: 9, Amount: -45}); err != nil {
		t.Fatalf("second adjustment: %v", err)
	}

	if len(asset.changes) != 2 {
		t.Fatalf("asset hook called %d times, want 2", len(asset.changes))
	}
	second := asset.changes[1]
	if second.pre != 30 || second.post != -15 {
		t.Fatalf("hook saw pre=%d post=%d, want pre=30 post=-15", second.pre, second.post)
	}
	if second.manager != "risk" || second.caller != "risk" {
		t.Fatalf("hook saw manager=%q caller=%q", second.manager, second.caller)
	}
}

func TestEventsPublishedOnlyOnOutermostSuccess(t *testing.T) {
	sink := &sinkStub{}
	l, _, _ := newTestLedger(t, sink)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")
	sink.published = nil

	if err := l.SubmitTransfer("alice", Transfer{From: a, To: b, Asset: "option", SubID: 0, Amount: 10}); err != nil {
		t.Fatalf("submit transfer: %v", err)
	}

	if len(sink.published) != 1 {
		t.Fatalf("published %d batches, want 1", len(sink.published))
	}
	events := sink.published[0]
	if len(events) != 2 {
		t.Fatalf("published %d events, want 2 balance adjustments", len(events))
	}
	for _, evt := range events {
		if evt.Type != EventBalanceAdjusted {
			t.Fatalf("event type = %q, want %q", evt.Type, EventBalanceAdjusted)
		}
	}
	if events[0].Pre != 0 || events[0].Post != -10 {
		t.Fatalf("first event pre/post = %d/%d, want 0/-10", events[0].Pre, events[0].Post)
	}
}

func TestSinkFailureRollsBackCall(t *testing.T) {
	sink := &sinkStub{}
	l, _, _ := newTestLedger(t, sink)
	a := mustCreate(t, l, "alice", "risk")
	b := mustCreate(t, l, "alice", "risk")

	sink.err = errors.New("event log unavailable")
	if err := l.SubmitTransfer("alice", Transfer{From: a, To: b, Asset: "option", SubID: 0, Amount: 10}); err == nil {
		t.Fatal("expected sink failure to fail the call")
	}
	if got := mustBalance(t, l, a, "option", 0); got != 0 {
		t.Fatalf("balance(a) = %d, want rollback to 0", got)
	}
}
