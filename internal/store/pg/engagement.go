package pg

import (
	"context"
	"fmt"

	"github.com/Sakshee21/SafeHavenWS/internal/engagement"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
)

var _ engagement.Store = (*Store)(nil)

// Append enforces the accept-before-report rule inside one transaction.
// The partial unique index on accepts turns a duplicate into
// AlreadyAccepted even under concurrent inserts.
func (s *Store) Append(ctx context.Context, e engagement.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if e.Kind == engagement.Report {
		var count int
		if err := tx.QueryRowContext(ctx, `
			select count(1) from engagements
			where case_id=$1 and volunteer=$2 and kind=$3
		`, e.CaseID, e.Volunteer.String(), int(engagement.Accept)).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: %s never accepted case %d", sos.ErrMustAcceptFirst, e.Volunteer, e.CaseID)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		insert into engagements(case_id, volunteer, kind, at)
		values ($1,$2,$3,$4)
	`, e.CaseID, e.Volunteer.String(), int(e.Kind), e.At); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s on case %d", sos.ErrAlreadyAccepted, e.Volunteer, e.CaseID)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) HasAccepted(ctx context.Context, caseID int64, volunteer principal.Address) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		select count(1) from engagements
		where case_id=$1 and volunteer=$2 and kind=$3
	`, caseID, volunteer.String(), int(engagement.Accept)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) AcceptedVolunteers(ctx context.Context, caseID int64) ([]principal.Address, error) {
	rows, err := s.db.QueryContext(ctx, `
		select volunteer from engagements
		where case_id=$1 and kind=$2 order by id asc
	`, caseID, int(engagement.Accept))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []principal.Address
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		p, err := principal.Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) LogsByCase(ctx context.Context, caseID int64) ([]engagement.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select case_id, volunteer, kind, at from engagements
		where case_id=$1 order by id asc
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engagement.Entry
	for rows.Next() {
		var (
			e    engagement.Entry
			raw  string
			kind int
		)
		if err := rows.Scan(&e.CaseID, &raw, &kind, &e.At); err != nil {
			return nil, err
		}
		e.Kind = engagement.Kind(kind)
		p, err := principal.Parse(raw)
		if err != nil {
			return nil, err
		}
		e.Volunteer = p
		out = append(out, e)
	}
	return out, rows.Err()
}
