package domain

// Transfer moves amount of one (asset, subID) key between two accounts: From
// loses Amount, To gains Amount. Amount may be negative to move value the
// other way.
type Transfer struct {
	From   uint64
	To     uint64
	Asset  string
	SubID  uint64
	Amount int64
}

// Adjustment is a privileged single-leg mutation applied by an account's
// manager or by the asset itself.
type Adjustment struct {
	Account uint64
	Asset   string
	SubID   uint64
	Amount  int64
}

// SubmitTransfer executes a single transfer atomically.
func (l *Ledger) SubmitTransfer(caller string, t Transfer) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)
	return l.executeTransfers(caller, []Transfer{t})
}

// SubmitTransfers executes a batch of transfers atomically. Each distinct
// account touched by any leg is risk-checked exactly once after all legs have
// been applied.
func (l *Ledger) SubmitTransfers(caller string, transfers []Transfer) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)
	return l.executeTransfers(caller, transfers)
}

func (l *Ledger) executeTransfers(caller string, transfers []Transfer) error {
	touched := make([]uint64, 0, 2*len(transfers))
	for _, t := range transfers {
		if err := l.executeLeg(caller, t); err != nil {
			return err
		}
		touched = appendUnique(touched, t.From)
		touched = appendUnique(touched, t.To)
	}
	return l.riskCheckAll(touched, caller)
}

// executeLeg authorizes both sides of one transfer, then applies the signed
// delta to each. Conservation holds by construction: the same amount is
// applied with opposite signs.
func (l *Ledger) executeLeg(caller string, t Transfer) error {
	if t.From == t.To {
		return ErrInvalidTransfer
	}
	fromAcct, err := l.account(t.From)
	if err != nil {
		return err
	}
	toAcct, err := l.account(t.To)
	if err != nil {
		return err
	}
	asset, err := l.asset(t.Asset)
	if err != nil {
		return err
	}
	debit, ok := negateChecked(t.Amount)
	if !ok {
		return ErrArithmeticOverflow
	}

	if err := l.authorizeDelta(caller, t.From, fromAcct, t.Asset, t.SubID, debit); err != nil {
		return err
	}
	if err := l.authorizeDelta(caller, t.To, toAcct, t.Asset, t.SubID, t.Amount); err != nil {
		return err
	}

	if _, err := l.applyDelta(caller, t.From, asset, t.SubID, debit); err != nil {
		return err
	}
	if _, err := l.applyDelta(caller, t.To, asset, t.SubID, t.Amount); err != nil {
		return err
	}
	return nil
}

// authorizeDelta admits the leg for free when the caller holds blanket rights
// over the account; otherwise it consumes the caller's delegate allowance for
// the signed delta actually applied.
func (l *Ledger) authorizeDelta(caller string, id uint64, acct *account, asset string, subID uint64, delta int64) error {
	if l.isAuthorized(acct, caller) {
		return nil
	}
	return l.consumeAllowance(id, caller, asset, subID, delta)
}

// TransferAll moves every held asset from one account to another, zeroing the
// source. Whole-account moves bypass the allowance path and require blanket
// rights on both accounts.
func (l *Ledger) TransferAll(caller string, from, to uint64) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	if err := l.moveAll(caller, from, to); err != nil {
		return err
	}
	return l.riskCheckAll([]uint64{from, to}, caller)
}

func (l *Ledger) moveAll(caller string, from, to uint64) error {
	if from == to {
		return ErrInvalidTransfer
	}
	fromAcct, err := l.account(from)
	if err != nil {
		return err
	}
	toAcct, err := l.account(to)
	if err != nil {
		return err
	}
	if !l.isAuthorized(fromAcct, caller) || !l.isAuthorized(toAcct, caller) {
		return ErrUnauthorized
	}

	// The held list mutates as positions drain; iterate a settled copy.
	positions := l.positions(fromAcct)
	for _, p := range positions {
		asset, err := l.asset(p.Asset)
		if err != nil {
			return err
		}
		debit, ok := negateChecked(p.Balance)
		if !ok {
			return ErrArithmeticOverflow
		}
		if _, err := l.applyDelta(caller, from, asset, p.SubID, debit); err != nil {
			return err
		}
		if _, err := l.applyDelta(caller, to, asset, p.SubID, p.Balance); err != nil {
			return err
		}
	}
	return nil
}

// Merge drains every source account into the target, then risk-checks each
// source and finally the target.
func (l *Ledger) Merge(caller string, target uint64, sources []uint64) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	for _, source := range sources {
		if err := l.moveAll(caller, source, target); err != nil {
			return err
		}
	}
	for _, source := range sources {
		if err := l.riskCheck(source, caller); err != nil {
			return err
		}
	}
	return l.riskCheck(target, caller)
}

// Split creates a new account governed by the source's manager and owned by
// the caller, redirects the given legs' destination to it, and executes them
// as a normal batch. When newOwner differs from the caller, ownership of the
// new account transfers to newOwner after the legs settle.
func (l *Ledger) Split(caller string, source uint64, legs []Transfer, newOwner string) (id uint64, err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	srcAcct, err := l.account(source)
	if err != nil {
		return 0, err
	}

	id, err = l.createAccount(caller, srcAcct.manager)
	if err != nil {
		return 0, err
	}

	retargeted := make([]Transfer, len(legs))
	for i, leg := range legs {
		leg.From = source
		leg.To = id
		retargeted[i] = leg
	}
	if err := l.executeTransfers(caller, retargeted); err != nil {
		return 0, err
	}

	if newOwner != "" && newOwner != caller {
		newAcct, err := l.account(id)
		if err != nil {
			return 0, err
		}
		if err := l.transferOwnership(caller, id, newAcct, newOwner); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// AdjustBalance applies one signed delta to one key, risk-checks the account,
// and returns the resulting balance. Only the account's manager or the asset
// itself may call it.
func (l *Ledger) AdjustBalance(caller string, adj Adjustment) (post int64, err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	acct, err := l.account(adj.Account)
	if err != nil {
		return 0, err
	}
	asset, err := l.asset(adj.Asset)
	if err != nil {
		return 0, err
	}
	if caller != acct.manager && caller != asset.ID() {
		return 0, ErrUnauthorized
	}

	post, err = l.applyDelta(caller, adj.Account, asset, adj.SubID, adj.Amount)
	if err != nil {
		return 0, err
	}
	if err := l.riskCheck(adj.Account, caller); err != nil {
		return 0, err
	}
	return post, nil
}
