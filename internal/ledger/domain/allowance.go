package domain

// AssetAllowance is one delegate's asset-level spending limit update.
// Positive bounds balance increases, Negative bounds decreases; both are
// absolute values and overwrite the stored allowance.
type AssetAllowance struct {
	Delegate string
	Asset    string
	Positive int64
	Negative int64
}

// SubIDAllowance is one delegate's sub-identifier-level spending limit update.
type SubIDAllowance struct {
	Delegate string
	Asset    string
	SubID    uint64
	Positive int64
	Negative int64
}

// SetAssetAllowances overwrites asset-level allowances for the given
// delegates. The caller must hold blanket rights over the account.
func (l *Ledger) SetAssetAllowances(caller string, id uint64, allowances []AssetAllowance) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	acct, err := l.account(id)
	if err != nil {
		return err
	}
	if !l.isAuthorized(acct, caller) {
		return ErrUnauthorized
	}

	for _, a := range allowances {
		if a.Positive < 0 || a.Negative < 0 {
			return ErrNegativeAllowance
		}
		if _, err := l.asset(a.Asset); err != nil {
			return err
		}
		key := assetAllowanceKey{account: id, delegate: a.Delegate, asset: a.Asset}
		l.setAssetAllowance(key, allowancePair{positive: a.Positive, negative: a.Negative})
	}
	return nil
}

// SetSubIDAllowances overwrites sub-identifier-level allowances for the given
// delegates. The caller must hold blanket rights over the account.
func (l *Ledger) SetSubIDAllowances(caller string, id uint64, allowances []SubIDAllowance) (err error) {
	sp := l.begin()
	defer l.finish(sp, &err)

	acct, err := l.account(id)
	if err != nil {
		return err
	}
	if !l.isAuthorized(acct, caller) {
		return ErrUnauthorized
	}

	for _, a := range allowances {
		if a.Positive < 0 || a.Negative < 0 {
			return ErrNegativeAllowance
		}
		if _, err := l.asset(a.Asset); err != nil {
			return err
		}
		key := subIDAllowanceKey{account: id, delegate: a.Delegate, asset: a.Asset, subID: a.SubID}
		l.setSubIDAllowance(key, allowancePair{positive: a.Positive, negative: a.Negative})
	}
	return nil
}

func (l *Ledger) setAssetAllowance(key assetAllowanceKey, pair allowancePair) {
	previous, had := l.assetAllowances[key]
	l.assetAllowances[key] = pair
	l.record(func() {
		if had {
			l.assetAllowances[key] = previous
		} else {
			delete(l.assetAllowances, key)
		}
	})
}

func (l *Ledger) setSubIDAllowance(key subIDAllowanceKey, pair allowancePair) {
	previous, had := l.subIDAllowances[key]
	l.subIDAllowances[key] = pair
	l.record(func() {
		if had {
			l.subIDAllowances[key] = previous
		} else {
			delete(l.subIDAllowances, key)
		}
	})
}

// consumeAllowance spends delegate allowance for one signed delta against one
// (account, asset, subID) key. The sub-identifier allowance is always drained
// before the asset-level allowance.
func (l *Ledger) consumeAllowance(id uint64, delegate, asset string, subID uint64, delta int64) error {
	if delta == 0 {
		return nil
	}
	need, ok := absChecked(delta)
	if !ok {
		return ErrArithmeticOverflow
	}

	subKey := subIDAllowanceKey{account: id, delegate: delegate, asset: asset, subID: subID}
	assetKey := assetAllowanceKey{account: id, delegate: delegate, asset: asset}
	subPair := l.subIDAllowances[subKey]
	assetPair := l.assetAllowances[assetKey]

	subAvail, assetAvail := subPair.positive, assetPair.positive
	if delta < 0 {
		subAvail, assetAvail = subPair.negative, assetPair.negative
	}

	switch {
	case need <= subAvail:
		subAvail -= need
	case need-subAvail <= assetAvail:
		assetAvail -= need - subAvail
		subAvail = 0
	default:
		return ErrInsufficientAllowance
	}

	if delta > 0 {
		subPair.positive, assetPair.positive = subAvail, assetAvail
	} else {
		subPair.negative, assetPair.negative = subAvail, assetAvail
	}
	l.setSubIDAllowance(subKey, subPair)
	l.setAssetAllowance(assetKey, assetPair)
	return nil
}

// AssetAllowanceOf returns the stored positive/negative asset-level allowance
// for one delegate.
func (l *Ledger) AssetAllowanceOf(id uint64, delegate, asset string) (positive, negative int64, err error) {
	if _, err := l.account(id); err != nil {
		return 0, 0, err
	}
	pair := l.assetAllowances[assetAllowanceKey{account: id, delegate: delegate, asset: asset}]
	return pair.positive, pair.negative, nil
}

// SubIDAllowanceOf returns the stored positive/negative sub-identifier-level
// allowance for one delegate.
func (l *Ledger) SubIDAllowanceOf(id uint64, delegate, asset string, subID uint64) (positive, negative int64, err error) {
	if _, err := l.account(id); err != nil {
		return 0, 0, err
	}
	pair := l.subIDAllowances[subIDAllowanceKey{account: id, delegate: delegate, asset: asset, subID: subID}]
	return pair.positive, pair.negative, nil
}
