package domain

// Manager is the risk-manager capability governing an account. It is
// consulted after every state-mutating operation that touches the account and
// may veto it by returning an error.
type Manager interface {
	// ID returns the stable identifier the ledger stores on accounts.
	// A manager-initiated call authenticates with this identifier.
	ID() string

	// OnAdjustment is invoked once per distinct affected account after its
	// balances have settled for the current call. Returning an error aborts
	// the entire operation.
	OnAdjustment(accountID uint64, balances []Position, caller string) error

	// OnManagerChangeApproval is invoked on the outgoing manager before an
	// account migrates to a new manager. Returning an error vetoes the change.
	OnManagerChangeApproval(accountID uint64, newManager string) error
}

// Asset is the capability representing one kind of position. It validates and
// records each balance change for keys under its identifier.
type Asset interface {
	// ID returns the stable identifier used in balance keys. An
	// asset-initiated adjustment authenticates with this identifier.
	ID() string

	// OnBalanceChange is invoked once per leg, immediately after that leg's
	// balance is committed. Returning an error aborts the entire operation.
	OnBalanceChange(accountID, subID uint64, pre, post int64, manager, caller string) error

	// OnManagerChangeNotify is invoked once per distinct held asset when an
	// account changes manager. Returning an error aborts the change.
	OnManagerChangeNotify(accountID uint64, newManager string) error
}
