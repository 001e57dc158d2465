package domain

// PassthroughManager is a manager capability that approves every adjustment
// and manager change. Deployments without an external risk engine register
// one per manager identity.
type PassthroughManager struct {
	id string
}

// NewPassthroughManager returns an accept-all manager with the given id.
func NewPassthroughManager(id string) *PassthroughManager {
	return &PassthroughManager{id: id}
}

func (m *PassthroughManager) ID() string { return m.id }

func (m *PassthroughManager) OnAdjustment(accountID uint64, balances []Position, caller string) error {
	return nil
}

func (m *PassthroughManager) OnManagerChangeApproval(accountID uint64, newManager string) error {
	return nil
}

// PassthroughAsset is an asset capability that accepts every balance change
// and manager change notification.
type PassthroughAsset struct {
	id string
}

// NewPassthroughAsset returns an accept-all asset with the given id.
func NewPassthroughAsset(id string) *PassthroughAsset {
	return &PassthroughAsset{id: id}
}

func (a *PassthroughAsset) ID() string { return a.id }

func (a *PassthroughAsset) OnBalanceChange(accountID, subID uint64, pre, post int64, manager, caller string) error {
	return nil
}

func (a *PassthroughAsset) OnManagerChangeNotify(accountID uint64, newManager string) error {
	return nil
}

var (
	_ Manager = (*PassthroughManager)(nil)
	_ Asset   = (*PassthroughAsset)(nil)
)
