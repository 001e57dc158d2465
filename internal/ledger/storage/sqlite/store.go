// Package sqlite provides a SQLite-backed ledger storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/quantfold/marginledger/internal/ledger/domain"
	"github.com/quantfold/marginledger/internal/ledger/storage"
	"github.com/quantfold/marginledger/internal/ledger/storage/sqlite/migrations"
	sqlitemigrate "github.com/quantfold/marginledger/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store persists ledger events and state snapshots in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendEvents writes one batch of ledger events to the log.
func (s *Store) AppendEvents(ctx context.Context, events []domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := toMillis(s.now())
	for _, event := range events {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO ledger_events (
			   event_type, account, owner, manager, old_manager,
			   asset, sub_id, pre_balance, post_balance, caller, created_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(event.Type),
			int64(event.Account),
			event.Owner,
			event.Manager,
			event.OldManager,
			event.Asset,
			int64(event.SubID),
			event.Pre,
			event.Post,
			event.Caller,
			createdAt,
		); err != nil {
			return fmt.Errorf("append events: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events after the given sequence, in log order.
func (s *Store) ListEvents(ctx context.Context, afterSequence int64, limit int) ([]storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT seq, event_type, account, owner, manager, old_manager,
		        asset, sub_id, pre_balance, post_balance, caller, created_at
		   FROM ledger_events
		  WHERE seq > ?
		  ORDER BY seq ASC
		  LIMIT ?`,
		afterSequence,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]storage.Event, 0, limit)
	for rows.Next() {
		var event storage.Event
		var eventType string
		var account int64
		var subID int64
		var createdAt int64
		if err := rows.Scan(
			&event.Sequence,
			&eventType,
			&account,
			&event.Owner,
			&event.Manager,
			&event.OldManager,
			&event.Asset,
			&subID,
			&event.Pre,
			&event.Post,
			&event.Caller,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		event.Type = domain.EventType(eventType)
		event.Account = uint64(account)
		event.SubID = uint64(subID)
		event.CreatedAt = fromMillis(createdAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// SaveState replaces the persisted snapshot with the given one.
func (s *Store) SaveState(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"accounts", "operators", "balances", "asset_allowances", "subid_allowances"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO ledger_meta (key, value) VALUES ('last_account_id', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		int64(snap.LastID),
	); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	for _, acct := range snap.Accounts {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO accounts (id, owner, manager, delegate) VALUES (?, ?, ?, ?)`,
			int64(acct.ID), acct.Owner, acct.Manager, acct.Delegate,
		); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		for ord, pos := range acct.Positions {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO balances (account, asset, sub_id, balance, ord) VALUES (?, ?, ?, ?, ?)`,
				int64(acct.ID), pos.Asset, int64(pos.SubID), pos.Balance, ord,
			); err != nil {
				return fmt.Errorf("save state: %w", err)
			}
		}
	}

	for _, grant := range snap.Operators {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO operators (owner, operator) VALUES (?, ?)`,
			grant.Owner, grant.Operator,
		); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}

	for _, allowance := range snap.AssetAllowances {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO asset_allowances (account, delegate, asset, positive, negative)
			 VALUES (?, ?, ?, ?, ?)`,
			int64(allowance.Account), allowance.Delegate, allowance.Asset,
			allowance.Positive, allowance.Negative,
		); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}
	for _, allowance := range snap.SubIDAllowances {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO subid_allowances (account, delegate, asset, sub_id, positive, negative)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			int64(allowance.Account), allowance.Delegate, allowance.Asset,
			int64(allowance.SubID), allowance.Positive, allowance.Negative,
		); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState reads the persisted snapshot. A store that has never been written
// returns an empty snapshot.
func (s *Store) LoadState(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Snapshot{}, fmt.Errorf("storage is not configured")
	}

	var snap domain.Snapshot

	var lastID int64
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT value FROM ledger_meta WHERE key = 'last_account_id'`,
	)
	switch err := row.Scan(&lastID); err {
	case nil:
		snap.LastID = uint64(lastID)
	case sql.ErrNoRows:
		return domain.Snapshot{}, nil
	default:
		return domain.Snapshot{}, fmt.Errorf("load state: %w", err)
	}

	accounts, err := s.loadAccounts(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap.Accounts = accounts

	if snap.Operators, err = s.loadOperators(ctx); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.AssetAllowances, err = s.loadAssetAllowances(ctx); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.SubIDAllowances, err = s.loadSubIDAllowances(ctx); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) loadAccounts(ctx context.Context) ([]domain.AccountSnapshot, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, owner, manager, delegate FROM accounts ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.AccountSnapshot
	index := make(map[uint64]int)
	for rows.Next() {
		var acct domain.AccountSnapshot
		var id int64
		if err := rows.Scan(&id, &acct.Owner, &acct.Manager, &acct.Delegate); err != nil {
			return nil, fmt.Errorf("load accounts: %w", err)
		}
		acct.ID = uint64(id)
		index[acct.ID] = len(accounts)
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	balanceRows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT account, asset, sub_id, balance FROM balances ORDER BY account ASC, ord ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var account int64
		var pos domain.Position
		var subID int64
		if err := balanceRows.Scan(&account, &pos.Asset, &subID, &pos.Balance); err != nil {
			return nil, fmt.Errorf("load balances: %w", err)
		}
		pos.SubID = uint64(subID)
		i, ok := index[uint64(account)]
		if !ok {
			return nil, fmt.Errorf("load balances: account %d has balances but no account row", account)
		}
		accounts[i].Positions = append(accounts[i].Positions, pos)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	return accounts, nil
}

func (s *Store) loadOperators(ctx context.Context) ([]domain.OperatorGrant, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT owner, operator FROM operators ORDER BY owner ASC, operator ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load operators: %w", err)
	}
	defer rows.Close()

	var grants []domain.OperatorGrant
	for rows.Next() {
		var grant domain.OperatorGrant
		if err := rows.Scan(&grant.Owner, &grant.Operator); err != nil {
			return nil, fmt.Errorf("load operators: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load operators: %w", err)
	}
	return grants, nil
}

func (s *Store) loadAssetAllowances(ctx context.Context) ([]domain.AssetAllowanceSnapshot, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT account, delegate, asset, positive, negative
		   FROM asset_allowances
		  ORDER BY account ASC, delegate ASC, asset ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load asset allowances: %w", err)
	}
	defer rows.Close()

	var allowances []domain.AssetAllowanceSnapshot
	for rows.Next() {
		var allowance domain.AssetAllowanceSnapshot
		var account int64
		if err := rows.Scan(
			&account, &allowance.Delegate, &allowance.Asset,
			&allowance.Positive, &allowance.Negative,
		); err != nil {
			return nil, fmt.Errorf("load asset allowances: %w", err)
		}
		allowance.Account = uint64(account)
		allowances = append(allowances, allowance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load asset allowances: %w", err)
	}
	return allowances, nil
}

func (s *Store) loadSubIDAllowances(ctx context.Context) ([]domain.SubIDAllowanceSnapshot, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT account, delegate, asset, sub_id, positive, negative
		   FROM subid_allowances
		  ORDER BY account ASC, delegate ASC, asset ASC, sub_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("load subid allowances: %w", err)
	}
	defer rows.Close()

	var allowances []domain.SubIDAllowanceSnapshot
	for rows.Next() {
		var allowance domain.SubIDAllowanceSnapshot
		var account int64
		var subID int64
		if err := rows.Scan(
			&account, &allowance.Delegate, &allowance.Asset, &subID,
			&allowance.Positive, &allowance.Negative,
		); err != nil {
			return nil, fmt.Errorf("load subid allowances: %w", err)
		}
		allowance.Account = uint64(account)
		allowance.SubID = uint64(subID)
		allowances = append(allowances, allowance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load subid allowances: %w", err)
	}
	return allowances, nil
}

var _ storage.Store = (*Store)(nil)
