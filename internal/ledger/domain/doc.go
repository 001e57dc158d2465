// Package domain implements the account ledger core: ownership and
// delegation, allowance accounting, the balance store with its held-asset
// index, and the atomic multi-leg transfer executor.
//
// The ledger tracks signed balances per (account, asset, sub-identifier) key.
// Every balance mutation flows through a single private path that keeps the
// compact held-asset index consistent and dispatches the asset verification
// hook. After the legs of a top-level call settle, each distinct affected
// account is risk-checked exactly once by its current manager.
//
// # Capabilities
//
// Margin computation and asset-specific semantics live outside the ledger.
// They plug in through two capability interfaces:
//   - Manager: evaluates an account's full balance set after any change and
//     may veto it.
//   - Asset: validates and records every individual balance change.
//
// Hooks run synchronously before the top-level call returns and may re-enter
// the ledger through its public API. The ledger commits all of its own state
// for a leg before invoking any hook for that leg, so re-entrant calls always
// observe a self-consistent balance store and held-asset index.
//
// # Atomicity
//
// Every public entry point executes atomically. Mutations record their
// inverses in an undo journal; a failed call rewinds to its savepoint, and a
// hook rejection anywhere in a batch discards the whole batch. Events are
// buffered per call and reach the sink only when the outermost call succeeds.
//
// The ledger is single-threaded by design: one logical call stack at a time.
// Callers that serve concurrent clients must serialize access (see the
// service package).
package domain
