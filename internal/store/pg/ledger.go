package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sakshee21/SafeHavenWS/internal/sos"
	"github.com/Sakshee21/SafeHavenWS/internal/submit"
)

// Ledger is the durable commit channel backed by Postgres. Each signing
// identity has a lane row carrying the next expected sequence; commits
// advance it inside the same transaction that records the action, so
// the (identity, sequence) stream stays gapless across restarts.
type Ledger struct {
	db *sql.DB
}

var _ submit.Ledger = (*Ledger)(nil)

// NewLedger wraps the shared connection pool.
func NewLedger(db *sql.DB) *Ledger { return &Ledger{db: db} }

func (l *Ledger) Commit(ctx context.Context, a submit.Action) (submit.Receipt, error) {
	params := []byte("{}")
	if len(a.Params) > 0 {
		bytes, err := json.Marshal(a.Params)
		if err != nil {
			return submit.Receipt{}, fmt.Errorf("marshal params: %w", err)
		}
		params = bytes
	}

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return submit.Receipt{}, fmt.Errorf("%w: %v", sos.ErrCommitFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	identity := a.Identity.String()
	if _, err := tx.ExecContext(ctx, `
		insert into ledger_lanes(identity, next_sequence)
		values ($1, 1) on conflict (identity) do nothing
	`, identity); err != nil {
		return submit.Receipt{}, fmt.Errorf("%w: %v", sos.ErrCommitFailed, err)
	}

	var expected uint64
	if err := tx.QueryRowContext(ctx, `
		select next_sequence from ledger_lanes where identity=$1 for update
	`, identity).Scan(&expected); err != nil {
		return submit.Receipt{}, fmt.Errorf("%w: %v", sos.ErrCommitFailed, err)
	}
	if a.Sequence != expected {
		return submit.Receipt{}, &submit.SequenceError{Got: a.Sequence, Expected: expected}
	}

	var receipt submit.Receipt
	err = tx.QueryRowContext(ctx, `
		insert into ledger_actions(identity, sequence, kind, case_id, params)
		values ($1,$2,$3,$4,$5)
		returning committed_at
	`, identity, a.Sequence, a.Kind, a.CaseID, params).Scan(&receipt.CommittedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return submit.Receipt{}, &submit.SequenceError{Got: a.Sequence, Expected: expected}
		}
		return submit.Receipt{}, fmt.Errorf("%w: %v", sos.ErrCommitFailed, err)
	}

	if _, err := tx.ExecContext(ctx, `
		update ledger_lanes set next_sequence=$2 where identity=$1
	`, identity, expected+1); err != nil {
		return submit.Receipt{}, fmt.Errorf("%w: %v", sos.ErrCommitFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return submit.Receipt{}, fmt.Errorf("%w: %v", sos.ErrCommitFailed, err)
	}

	receipt.Sequence = a.Sequence
	return receipt, nil
}

// Verify reads back one committed action, for smoke checks.
func (l *Ledger) Verify(ctx context.Context, identity string, sequence uint64) (bool, error) {
	var count int
	err := l.db.QueryRowContext(ctx, `
		select count(1) from ledger_actions where identity=$1 and sequence=$2
	`, identity, sequence).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
