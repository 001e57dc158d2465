package domain

// EventType identifies a ledger event.
type EventType string

const (
	EventAccountCreated       EventType = "account.created"
	EventAccountBurned        EventType = "account.burned"
	EventManagerChanged       EventType = "manager.changed"
	EventOwnershipTransferred EventType = "ownership.transferred"
	EventBalanceAdjusted      EventType = "balance.adjusted"
)

// Event records one observable ledger state change. Events are buffered per
// top-level call and published only when the whole call succeeds.
type Event struct {
	Type       EventType
	Account    uint64
	Owner      string // account.created, ownership.transferred (new owner)
	Manager    string // account.created, manager.changed (new manager)
	OldManager string // manager.changed
	Asset      string // balance.adjusted
	SubID      uint64 // balance.adjusted
	Pre        int64  // balance.adjusted
	Post       int64  // balance.adjusted
	Caller     string
}

// EventSink receives the events of a successful top-level call.
type EventSink interface {
	Publish(events []Event) error
}
