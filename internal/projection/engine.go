// Package projection is the kernel's read-optimized, rebuildable balance
// and history cache (spec.md 4.5). It is never authoritative: the event
// store is the file of record, and this cache can be deleted and replayed
// from sequence 0 at any time.
package projection

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	kerr "github.com/apex-ledger/kernel/internal/errors"
	"github.com/apex-ledger/kernel/internal/ledger"
	"github.com/apex-ledger/kernel/internal/money"
	"github.com/apex-ledger/kernel/internal/projection/migrations"
)

// Engine is the SQLite-backed projection cache.
type Engine struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the projection database at path and
// applies the embedded schema.
func Open(path string) (*Engine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, kerr.StorageIO("open projection database", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline mirrors the event store's (spec.md 4.3).

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, kerr.StorageIO("ping projection database", err)
	}
	if err := migrations.Apply(context.Background(), db); err != nil {
		db.Close()
		return nil, kerr.StorageIO("apply projection migrations", err)
	}

	return &Engine{db: db, path: path}, nil
}

// Close releases the database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

// CheckpointSequence returns the sequence of the last entry applied to the
// projection, and whether any entry has been applied.
func (e *Engine) CheckpointSequence() (uint64, bool, error) {
	row := e.db.QueryRow(`SELECT last_sequence, have_entries FROM checkpoint WHERE id = 1`)
	var seq uint64
	var have int
	if err := row.Scan(&seq, &have); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, kerr.StorageIO("read checkpoint", err)
	}
	return seq, have == 1, nil
}

// Apply idempotently folds a sealed entry into the cache: an entry whose
// sequence is already present is a no-op, which makes gap-replay after a
// crash safe to re-run from the last checkpoint (spec.md 4.5, 4.8).
func (e *Engine) Apply(entry ledger.SealedJournalEntry) error {
	ctx := context.Background()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return kerr.StorageIO("begin projection transaction", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE sequence = ?`, entry.Sequence).Scan(&exists); err == nil {
		return nil // already applied; idempotent no-op.
	} else if err != sql.ErrNoRows {
		return kerr.StorageIO("check existing entry", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entries (sequence, intent, timestamp, correlation_id, causality_id, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Sequence, string(entry.Intent), entry.Timestamp, entry.CorrelationID, entry.CausalityID, entry.PrevHash, entry.Hash,
	); err != nil {
		return kerr.StorageIO("insert entry", err)
	}

	deltas := map[string]money.Amount{}
	for i, p := range entry.Postings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO postings (sequence, ord, account, side, asset, amount)
			VALUES (?, ?, ?, ?, ?, ?)`,
			entry.Sequence, i, p.Account.String(), string(p.Side), string(p.Asset), p.Amount.Canonical(),
		); err != nil {
			return kerr.StorageIO("insert posting", err)
		}

		key := p.Account.String()
		cur, ok := deltas[key]
		if !ok {
			cur = money.Zero(p.Asset)
		}
		var updated money.Amount
		var err error
		if ledger.SignedContribution(p.Account.Category, p.Side) > 0 {
			updated, err = cur.Add(p.Amount)
		} else {
			updated, err = cur.Sub(p.Amount)
		}
		if err != nil {
			return err
		}
		deltas[key] = updated
	}

	for account, delta := range deltas {
		current, err := e.balanceTx(ctx, tx, account, delta.Asset())
		if err != nil {
			return err
		}
		updated, err := current.Add(delta)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balances (account, asset, balance) VALUES (?, ?, ?)
			ON CONFLICT(account) DO UPDATE SET balance = excluded.balance`,
			account, string(updated.Asset()), updated.Canonical(),
		); err != nil {
			return kerr.StorageIO("upsert balance", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO checkpoint (id, last_sequence, have_entries) VALUES (1, ?, 1)
		ON CONFLICT(id) DO UPDATE SET last_sequence = excluded.last_sequence, have_entries = 1`,
		entry.Sequence,
	); err != nil {
		return kerr.StorageIO("update checkpoint", err)
	}

	if err := tx.Commit(); err != nil {
		return kerr.StorageIO("commit projection transaction", err)
	}
	return nil
}

func (e *Engine) balanceTx(ctx context.Context, tx *sql.Tx, account string, asset money.AssetCode) (money.Amount, error) {
	row := tx.QueryRowContext(ctx, `SELECT balance FROM balances WHERE account = ?`, account)
	var literal string
	if err := row.Scan(&literal); err != nil {
		if err == sql.ErrNoRows {
			return money.Zero(asset), nil
		}
		return money.Amount{}, kerr.StorageIO("read balance", err)
	}
	return money.New(asset, literal)
}

// Balance returns the current cached balance of account.
func (e *Engine) Balance(account string, asset money.AssetCode) (money.Amount, error) {
	row := e.db.QueryRow(`SELECT balance FROM balances WHERE account = ?`, account)
	var literal string
	if err := row.Scan(&literal); err != nil {
		if err == sql.ErrNoRows {
			return money.Zero(asset), nil
		}
		return money.Amount{}, kerr.StorageIO("read balance", err)
	}
	return money.New(asset, literal)
}

// HistoryRecord is one posting line in an account's history, joined with
// its parent entry's metadata (spec.md 6.3 "history").
type HistoryRecord struct {
	Sequence uint64
	Intent   string
	Side     string
	Amount   string
	Asset    string
}

// History returns account's postings with sequence >= from, oldest first.
func (e *Engine) History(account string, from uint64) ([]HistoryRecord, error) {
	rows, err := e.db.Query(`
		SELECT p.sequence, e.intent, p.side, p.amount, p.asset
		FROM postings p
		JOIN entries e ON e.sequence = p.sequence
		WHERE p.account = ? AND p.sequence >= ?
		ORDER BY p.sequence ASC, p.ord ASC`, account, from)
	if err != nil {
		return nil, kerr.StorageIO("query history", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		if err := rows.Scan(&r.Sequence, &r.Intent, &r.Side, &r.Amount, &r.Asset); err != nil {
			return nil, kerr.StorageIO("scan history row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, kerr.StorageIO("iterate history rows", err)
	}
	return out, nil
}

// Reset truncates the cache entirely, so the caller can rebuild it from
// sequence 0 (spec.md 6.3 "replay --reset").
func (e *Engine) Reset() error {
	ctx := context.Background()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return kerr.StorageIO("begin reset transaction", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM postings`,
		`DELETE FROM entries`,
		`DELETE FROM balances`,
		`DELETE FROM checkpoint`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return kerr.StorageIO(fmt.Sprintf("reset: %s", stmt), err)
		}
	}

	return tx.Commit()
}
