package domain

import (
	"math"
	"strconv"

	apperrors "github.com/quantfold/marginledger/internal/platform/errors"
)

// GetBalance returns the signed balance stored under (account, asset, subID).
// Keys that were never touched report zero.
func (l *Ledger) GetBalance(id uint64, asset string, subID uint64) (int64, error) {
	acct, err := l.account(id)
	if err != nil {
		return 0, err
	}
	rec, ok := acct.balances[balanceKey{asset: asset, subID: subID}]
	if !ok {
		return 0, nil
	}
	return rec.balance, nil
}

// GetAccountBalances returns every non-zero position of the account.
func (l *Ledger) GetAccountBalances(id uint64) ([]Position, error) {
	acct, err := l.account(id)
	if err != nil {
		return nil, err
	}
	return l.positions(acct), nil
}

// HeldAssets returns the account's compact index of non-zero positions.
func (l *Ledger) HeldAssets(id uint64) ([]HeldAsset, error) {
	acct, err := l.account(id)
	if err != nil {
		return nil, err
	}
	out := make([]HeldAsset, len(acct.held))
	copy(out, acct.held)
	return out, nil
}

// applyDelta is the only path that mutates balances. It applies one signed
// delta to one key, keeps the held-asset index consistent, and then invokes
// the asset verification hook. All ledger-owned state for the leg is
// committed before the hook runs, so a hook that re-enters the ledger
// observes the settled leg.
func (l *Ledger) applyDelta(caller string, id uint64, asset Asset, subID uint64, delta int64) (int64, error) {
	acct, err := l.account(id)
	if err != nil {
		return 0, err
	}

	key := balanceKey{asset: asset.ID(), subID: subID}
	rec, ok := acct.balances[key]
	if !ok {
		rec = &balanceRecord{}
		acct.balances[key] = rec
		l.record(func() { delete(acct.balances, key) })
	}

	pre := rec.balance
	post, ok := addChecked(pre, delta)
	if !ok {
		return 0, apperrors.WithMetadata(apperrors.CodeArithmeticOverflow, "balance overflow",
			map[string]string{
				"account": strconv.FormatUint(id, 10),
				"asset":   asset.ID(),
			})
	}

	prevOrder := rec.order
	switch {
	case pre != 0 && post == 0:
		l.removeHeld(acct, rec)
	case pre == 0 && post != 0:
		l.appendHeld(acct, rec, HeldAsset{Asset: asset.ID(), SubID: subID})
	}
	rec.balance = post
	l.record(func() {
		rec.balance = pre
		rec.order = prevOrder
	})

	l.emit(Event{
		Type:    EventBalanceAdjusted,
		Account: id,
		Asset:   asset.ID(),
		SubID:   subID,
		Pre:     pre,
		Post:    post,
		Caller:  caller,
	})

	if hookErr := asset.OnBalanceChange(id, subID, pre, post, acct.manager, caller); hookErr != nil {
		return 0, assetRejected(asset.ID(), id, hookErr)
	}
	return post, nil
}

// appendHeld adds a new held-asset entry at the tail and stores its order on
// the record.
func (l *Ledger) appendHeld(acct *account, rec *balanceRecord, entry HeldAsset) {
	prevHeld := acct.held
	acct.held = append(acct.held[:len(acct.held):len(acct.held)], entry)
	rec.order = len(acct.held) - 1
	l.record(func() { acct.held = prevHeld })
}

// removeHeld drops the record's entry with swap-with-last-and-pop: the tail
// entry moves into the freed slot and its stored order follows it, then the
// list shrinks by one. The removed record's order resets to the sentinel 0.
func (l *Ledger) removeHeld(acct *account, rec *balanceRecord) {
	prevHeld := acct.held
	slot := rec.order
	last := len(acct.held) - 1
	removed := acct.held[slot]

	if slot != last {
		moved := acct.held[last]
		movedRec := acct.balances[balanceKey{asset: moved.Asset, subID: moved.SubID}]
		prevMovedOrder := movedRec.order
		acct.held[slot] = moved
		movedRec.order = slot
		l.record(func() { movedRec.order = prevMovedOrder })
	}
	acct.held = acct.held[:last]
	rec.order = 0
	l.record(func() {
		prevHeld[slot] = removed
		acct.held = prevHeld
	})
}

// addChecked adds two signed balances, reporting overflow instead of
// wrapping.
func addChecked(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// negateChecked flips the sign of a delta; math.MinInt64 has no positive
// counterpart.
func negateChecked(v int64) (int64, bool) {
	if v == math.MinInt64 {
		return 0, false
	}
	return -v, true
}

// absChecked returns |v|, reporting overflow for math.MinInt64.
func absChecked(v int64) (int64, bool) {
	if v == math.MinInt64 {
		return 0, false
	}
	if v < 0 {
		return -v, true
	}
	return v, true
}
