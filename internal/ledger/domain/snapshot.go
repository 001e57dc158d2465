package domain

import (
	"fmt"
	"sort"
)

// AccountSnapshot is the persisted form of one account. Positions are listed
// in held-asset order so a restore rebuilds the exact index.
type AccountSnapshot struct {
	ID        uint64
	Owner     string
	Manager   string
	Delegate  string
	Positions []Position
}

// OperatorGrant records one owner-level operator approval.
type OperatorGrant struct {
	Owner    string
	Operator string
}

// AssetAllowanceSnapshot is the persisted form of one asset-level allowance.
type AssetAllowanceSnapshot struct {
	Account  uint64
	Delegate string
	Asset    string
	Positive int64
	Negative int64
}

// SubIDAllowanceSnapshot is the persisted form of one sub-identifier-level
// allowance.
type SubIDAllowanceSnapshot struct {
	Account  uint64
	Delegate string
	Asset    string
	SubID    uint64
	Positive int64
	Negative int64
}

// Snapshot is a full copy of ledger state, suitable for persistence.
type Snapshot struct {
	LastID          uint64
	Accounts        []AccountSnapshot
	Operators       []OperatorGrant
	AssetAllowances []AssetAllowanceSnapshot
	SubIDAllowances []SubIDAllowanceSnapshot
}

// Snapshot copies the current ledger state. Zero-balance record slots are not
// persisted; they rematerialize on first touch after a restore.
func (l *Ledger) Snapshot() Snapshot {
	snap := Snapshot{LastID: l.lastID}

	for id, acct := range l.accounts {
		snap.Accounts = append(snap.Accounts, AccountSnapshot{
			ID:        id,
			Owner:     acct.owner,
			Manager:   acct.manager,
			Delegate:  acct.delegate,
			Positions: l.positions(acct),
		})
	}
	sort.Slice(snap.Accounts, func(i, j int) bool { return snap.Accounts[i].ID < snap.Accounts[j].ID })

	for owner, grants := range l.operators {
		for operator, approved := range grants {
			if approved {
				snap.Operators = append(snap.Operators, OperatorGrant{Owner: owner, Operator: operator})
			}
		}
	}
	sort.Slice(snap.Operators, func(i, j int) bool {
		if snap.Operators[i].Owner != snap.Operators[j].Owner {
			return snap.Operators[i].Owner < snap.Operators[j].Owner
		}
		return snap.Operators[i].Operator < snap.Operators[j].Operator
	})

	for key, pair := range l.assetAllowances {
		if pair.positive == 0 && pair.negative == 0 {
			continue
		}
		snap.AssetAllowances = append(snap.AssetAllowances, AssetAllowanceSnapshot{
			Account:  key.account,
			Delegate: key.delegate,
			Asset:    key.asset,
			Positive: pair.positive,
			Negative: pair.negative,
		})
	}
	sort.Slice(snap.AssetAllowances, func(i, j int) bool {
		a, b := snap.AssetAllowances[i], snap.AssetAllowances[j]
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		if a.Delegate != b.Delegate {
			return a.Delegate < b.Delegate
		}
		return a.Asset < b.Asset
	})

	for key, pair := range l.subIDAllowances {
		if pair.positive == 0 && pair.negative == 0 {
			continue
		}
		snap.SubIDAllowances = append(snap.SubIDAllowances, SubIDAllowanceSnapshot{
			Account:  key.account,
			Delegate: key.delegate,
			Asset:    key.asset,
			SubID:    key.subID,
			Positive: pair.positive,
			Negative: pair.negative,
		})
	}
	sort.Slice(snap.SubIDAllowances, func(i, j int) bool {
		a, b := snap.SubIDAllowances[i], snap.SubIDAllowances[j]
		if a.Account != b.Account {
			return a.Account < b.Account
		}
		if a.Delegate != b.Delegate {
			return a.Delegate < b.Delegate
		}
		if a.Asset != b.Asset {
			return a.Asset < b.Asset
		}
		return a.SubID < b.SubID
	})

	return snap
}

// Restore replaces the ledger state with a snapshot. Every referenced asset
// and manager capability must already be registered. Restore refuses to run
// on a ledger with an open call in flight.
func (l *Ledger) Restore(snap Snapshot) error {
	if l.depth != 0 {
		return fmt.Errorf("restore during an in-flight call")
	}

	accounts := make(map[uint64]*account, len(snap.Accounts))
	for _, as := range snap.Accounts {
		if as.ID == 0 || as.ID > snap.LastID {
			return fmt.Errorf("snapshot account id %d outside issued range", as.ID)
		}
		if _, ok := l.managers[as.Manager]; !ok {
			return fmt.Errorf("snapshot account %d references unregistered manager %q", as.ID, as.Manager)
		}
		if _, ok := accounts[as.ID]; ok {
			return fmt.Errorf("snapshot repeats account id %d", as.ID)
		}
		acct := &account{
			owner:    as.Owner,
			manager:  as.Manager,
			delegate: as.Delegate,
			balances: make(map[balanceKey]*balanceRecord, len(as.Positions)),
		}
		for i, p := range as.Positions {
			if p.Balance == 0 {
				return fmt.Errorf("snapshot account %d holds a zero position for %s/%d", as.ID, p.Asset, p.SubID)
			}
			if _, ok := l.assets[p.Asset]; !ok {
				return fmt.Errorf("snapshot account %d references unregistered asset %q", as.ID, p.Asset)
			}
			key := balanceKey{asset: p.Asset, subID: p.SubID}
			if _, ok := acct.balances[key]; ok {
				return fmt.Errorf("snapshot account %d repeats position %s/%d", as.ID, p.Asset, p.SubID)
			}
			acct.balances[key] = &balanceRecord{balance: p.Balance, order: i}
			acct.held = append(acct.held, HeldAsset{Asset: p.Asset, SubID: p.SubID})
		}
		accounts[as.ID] = acct
	}

	operators := make(map[string]map[string]bool)
	for _, grant := range snap.Operators {
		grants, ok := operators[grant.Owner]
		if !ok {
			grants = make(map[string]bool)
			operators[grant.Owner] = grants
		}
		grants[grant.Operator] = true
	}

	assetAllowances := make(map[assetAllowanceKey]allowancePair, len(snap.AssetAllowances))
	for _, a := range snap.AssetAllowances {
		if a.Positive < 0 || a.Negative < 0 {
			return fmt.Errorf("snapshot allowance for account %d is negative", a.Account)
		}
		key := assetAllowanceKey{account: a.Account, delegate: a.Delegate, asset: a.Asset}
		assetAllowances[key] = allowancePair{positive: a.Positive, negative: a.Negative}
	}

	subIDAllowances := make(map[subIDAllowanceKey]allowancePair, len(snap.SubIDAllowances))
	for _, a := range snap.SubIDAllowances {
		if a.Positive < 0 || a.Negative < 0 {
			return fmt.Errorf("snapshot allowance for account %d is negative", a.Account)
		}
		key := subIDAllowanceKey{account: a.Account, delegate: a.Delegate, asset: a.Asset, subID: a.SubID}
		subIDAllowances[key] = allowancePair{positive: a.Positive, negative: a.Negative}
	}

	l.lastID = snap.LastID
	l.accounts = accounts
	l.operators = operators
	l.assetAllowances = assetAllowances
	l.subIDAllowances = subIDAllowances
	l.journal = nil
	l.pending = nil
	return nil
}
