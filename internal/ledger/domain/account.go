package domain

// CreateAccount mints a fresh account id owned by owner and governed by the
// given manager. Ids are issued monotonically starting at 1.
func (l *Ledger) CreateAccount(owner, managerID string) (id uint64, err error) {
	sp := l.begin()
	defer l.finish(sp, &err)
	return l.createAccount(owner, managerID)
}

func (l *Ledger) createAccount(owner, managerID string) (uint64, error) {
	if owner == "" {
		return 0, ErrInvalidOwner
	}
	if _, ok := l.managers[managerID]; !ok {
		return 0, ErrUnknownManager
	}

	l.lastID++
	id := l.lastID
	l.accounts[id] = &account{
		owner:    owner,
		manager:  managerID,
		balances: make(map[balanceKey]*balanceRecord),
	}
	l.record(func() {
		delete(l.accounts, id)
		l.lastID--
	})

	l.emit(Event{Type: EventAccountCreated, Account: id, Owner: owner, Manager: managerID, Caller: owner})
	return id, nil
}

// BurnAccounts destroys the given accounts. Every account must be empty (no
// non-zero balances) and the caller must hold blanket rights over each one.
// Burned ids are never reissued.
func (l *Ledger) BurnAccounts(caller string, ids []uint64) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	for _, id := range ids {
		acct, err := l.account(id)
		if err != nil {
			return err
		}
		if !l.isAuthorized(acct, caller) {
			return ErrUnauthorized
		}
		if len(acct.held) != 0 {
			return ErrAccountNotEmpty
		}

		burned := acct
		burnedID := id
		delete(l.accounts, id)
		l.record(func() { l.accounts[burnedID] = burned })

		l.emit(Event{Type: EventAccountBurned, Account: id, Caller: caller})
	}
	return nil
}

// ChangeManager migrates the account to a new manager. The outgoing manager
// may veto the change, and every distinct asset the account currently holds
// is notified exactly once. The new manager risk-checks the account before
// the change commits.
func (l *Ledger) ChangeManager(caller string, id uint64, newManagerID string) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	acct, err := l.account(id)
	if err != nil {
		return err
	}
	if !l.isAuthorized(acct, caller) {
		return ErrUnauthorized
	}
	if acct.manager == newManagerID {
		return nil
	}
	if _, ok := l.managers[newManagerID]; !ok {
		return ErrUnknownManager
	}

	oldManagerID := acct.manager
	oldManager := l.managers[oldManagerID]
	if hookErr := oldManager.OnManagerChangeApproval(id, newManagerID); hookErr != nil {
		return managerRejected(id, hookErr)
	}

	// Notify each distinct held asset once, not once per sub-identifier.
	seen := make(map[string]bool, len(acct.held))
	for _, h := range acct.held {
		if seen[h.Asset] {
			continue
		}
		seen[h.Asset] = true
		asset := l.assets[h.Asset]
		if hookErr := asset.OnManagerChangeNotify(id, newManagerID); hookErr != nil {
			return assetRejected(h.Asset, id, hookErr)
		}
	}

	acct.manager = newManagerID
	l.record(func() { acct.manager = oldManagerID })
	l.emit(Event{Type: EventManagerChanged, Account: id, Manager: newManagerID, OldManager: oldManagerID, Caller: caller})

	return l.riskCheck(id, caller)
}

// SetFullAllowance grants (or with an empty delegate clears) blanket approval
// for one account. Only the owner or an approved operator of the owner may
// change it.
func (l *Ledger) SetFullAllowance(caller string, id uint64, delegate string) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	acct, err := l.account(id)
	if err != nil {
		return err
	}
	if caller != acct.owner && !l.operators[acct.owner][caller] {
		return ErrUnauthorized
	}

	previous := acct.delegate
	acct.delegate = delegate
	l.record(func() { acct.delegate = previous })
	return nil
}

// SetOperator approves or revokes an operator for every account the caller
// owns, now and in the future.
func (l *Ledger) SetOperator(caller, operator string, approved bool) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	if caller == "" || operator == "" {
		return ErrInvalidOwner
	}

	grants, ok := l.operators[caller]
	if !ok {
		grants = make(map[string]bool)
		l.operators[caller] = grants
	}
	previous, had := grants[operator]
	if approved {
		grants[operator] = true
	} else {
		delete(grants, operator)
	}
	l.record(func() {
		if had {
			grants[operator] = previous
		} else {
			delete(grants, operator)
		}
	})
	return nil
}

// TransferOwnership moves the account to a new owner and clears its
// full-allowance delegate.
func (l *Ledger) TransferOwnership(caller string, id uint64, newOwner string) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	acct, err := l.account(id)
	if err != nil {
		return err
	}
	if !l.isAuthorized(acct, caller) {
		return ErrUnauthorized
	}
	return l.transferOwnership(caller, id, acct, newOwner)
}

func (l *Ledger) transferOwnership(caller string, id uint64, acct *account, newOwner string) error {
	if newOwner == "" {
		return ErrInvalidOwner
	}

	prevOwner := acct.owner
	prevDelegate := acct.delegate
	acct.owner = newOwner
	acct.delegate = ""
	l.record(func() {
		acct.owner = prevOwner
		acct.delegate = prevDelegate
	})

	l.emit(Event{Type: EventOwnershipTransferred, Account: id, Owner: newOwner, Caller: caller})
	return nil
}

// Owner returns the account's owner identity.
func (l *Ledger) Owner(id uint64) (string, error) {
	acct, err := l.account(id)
	if err != nil {
		return "", err
	}
	return acct.owner, nil
}

// ManagerOf returns the id of the account's current manager.
func (l *Ledger) ManagerOf(id uint64) (string, error) {
	acct, err := l.account(id)
	if err != nil {
		return "", err
	}
	return acct.manager, nil
}

// FullDelegate returns the account's full-allowance delegate, if any.
func (l *Ledger) FullDelegate(id uint64) (string, error) {
	acct, err := l.account(id)
	if err != nil {
		return "", err
	}
	return acct.delegate, nil
}

// IsOperator reports whether operator is approved for all of owner's accounts.
func (l *Ledger) IsOperator(owner, operator string) bool {
	return l.operators[owner][operator]
}

// LastID returns the most recently issued account id.
func (l *Ledger) LastID() uint64 {
	return l.lastID
}
