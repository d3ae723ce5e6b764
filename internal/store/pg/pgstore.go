// Package pg projects the case, role, engagement and ledger stores onto
// Postgres. One *sql.DB is shared by all of them.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
)

const pgErrUniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var _ sos.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool. Used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Create(ctx context.Context, c sos.Case) (sos.Case, error) {
	err := s.db.QueryRowContext(ctx, `
		insert into cases(victim, status, latitude, longitude, created_at)
		values ($1,$2,$3,$4,$5)
		returning id
	`, c.Victim.String(), int(c.Status), c.Latitude, c.Longitude, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return sos.Case{}, err
	}
	return c, nil
}

func (s *Store) Get(ctx context.Context, id int64) (sos.Case, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, victim, status, latitude, longitude, created_at, assigned_volunteer, acknowledged_by
		from cases where id=$1
	`, id)
	return scanCase(row)
}

// Update locks the row so fn sees current state and concurrent
// transitions serialize. Immutable columns never move.
func (s *Store) Update(ctx context.Context, id int64, fn func(*sos.Case) error) (sos.Case, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sos.Case{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		select id, victim, status, latitude, longitude, created_at, assigned_volunteer, acknowledged_by
		from cases where id=$1 for update
	`, id)
	c, err := scanCase(row)
	if err != nil {
		return sos.Case{}, err
	}

	scratch := c
	if err := fn(&scratch); err != nil {
		return sos.Case{}, err
	}
	scratch.ID = c.ID
	scratch.Victim = c.Victim
	scratch.CreatedAt = c.CreatedAt

	if _, err := tx.ExecContext(ctx, `
		update cases
		set status=$2, latitude=$3, longitude=$4,
		    assigned_volunteer=nullif($5,''), acknowledged_by=nullif($6,'')
		where id=$1
	`, scratch.ID, int(scratch.Status), scratch.Latitude, scratch.Longitude,
		addrOrEmpty(scratch.AssignedVolunteer), addrOrEmpty(scratch.AcknowledgedBy)); err != nil {
		return sos.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return sos.Case{}, err
	}
	return scratch, nil
}

func (s *Store) List(ctx context.Context) ([]sos.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, victim, status, latitude, longitude, created_at, assigned_volunteer, acknowledged_by
		from cases order by id asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCases(rows)
}

func (s *Store) ByVictim(ctx context.Context, victim principal.Address) ([]sos.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, victim, status, latitude, longitude, created_at, assigned_volunteer, acknowledged_by
		from cases where victim=$1 order by id asc
	`, victim.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCases(rows)
}

func (s *Store) AppendAction(ctx context.Context, rec sos.ActionRecord) error {
	res, err := s.db.ExecContext(ctx, `
		insert into case_actions(case_id, action, actor, at)
		select $1, $2, $3, $4 where exists (select 1 from cases where id=$1)
	`, rec.CaseID, rec.Action, rec.Actor.String(), rec.At)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return sos.ErrNotFound
	}
	return nil
}

func (s *Store) Actions(ctx context.Context, caseID int64) ([]sos.ActionRecord, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `select 1 from cases where id=$1`, caseID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sos.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select case_id, action, actor, at
		from case_actions where case_id=$1 order by id asc
	`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []sos.ActionRecord
	for rows.Next() {
		var rec sos.ActionRecord
		var actor string
		if err := rows.Scan(&rec.CaseID, &rec.Action, &actor, &rec.At); err != nil {
			return nil, err
		}
		if rec.Actor, err = principal.Parse(actor); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (sos.Case, error) {
	var (
		c        sos.Case
		status   int
		victim   string
		assigned sql.NullString
		acked    sql.NullString
	)
	err := row.Scan(&c.ID, &victim, &status, &c.Latitude, &c.Longitude, &c.CreatedAt, &assigned, &acked)
	if errors.Is(err, sql.ErrNoRows) {
		return sos.Case{}, sos.ErrNotFound
	}
	if err != nil {
		return sos.Case{}, err
	}
	c.Status = sos.Status(status)
	if c.Victim, err = principal.Parse(victim); err != nil {
		return sos.Case{}, err
	}
	if assigned.Valid {
		if c.AssignedVolunteer, err = principal.Parse(assigned.String); err != nil {
			return sos.Case{}, err
		}
	}
	if acked.Valid {
		if c.AcknowledgedBy, err = principal.Parse(acked.String); err != nil {
			return sos.Case{}, err
		}
	}
	return c, nil
}

func collectCases(rows *sql.Rows) ([]sos.Case, error) {
	var out []sos.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func addrOrEmpty(p principal.Address) string {
	if p.IsZero() {
		return ""
	}
	return p.String()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
