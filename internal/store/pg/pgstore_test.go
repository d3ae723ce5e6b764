package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Sakshee21/SafeHavenWS/internal/engagement"
	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
	"github.com/Sakshee21/SafeHavenWS/internal/sos"
	"github.com/Sakshee21/SafeHavenWS/internal/submit"
)

var (
	victim    = principal.MustParse("0x00000000000000000000000000000000000000a1")
	volunteer = principal.MustParse("0x00000000000000000000000000000000000000c3")
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func caseColumns() []string {
	return []string{"id", "victim", "status", "latitude", "longitude", "created_at", "assigned_volunteer", "acknowledged_by"}
}

func TestGetCase(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("select id, victim, status, latitude, longitude, created_at, assigned_volunteer, acknowledged_by").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(caseColumns()).
			AddRow(int64(7), victim.String(), 1, "43.2", "76.8", created, nil, victim.String()))

	c, err := s.Get(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != 7 || c.Status != sos.StatusAcknowledged || c.Victim != victim {
		t.Fatalf("case = %+v", c)
	}
	if !c.AssignedVolunteer.IsZero() {
		t.Fatalf("assigned = %s", c.AssignedVolunteer)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetCaseNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select id, victim, status").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(caseColumns()))

	if _, err := s.Get(context.Background(), 99); !errors.Is(err, sos.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestCreateCase(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("insert into cases").
		WithArgs(victim.String(), 0, "43.2", "76.8", created).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	c, err := s.Create(context.Background(), sos.Case{
		Victim:    victim,
		Latitude:  "43.2",
		Longitude: "76.8",
		CreatedAt: created,
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.ID != 1 {
		t.Fatalf("id = %d", c.ID)
	}
}

func TestUpdateLocksRow(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("for update").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(caseColumns()).
			AddRow(int64(3), victim.String(), 0, "1", "2", created, nil, nil))
	mock.ExpectExec("update cases").
		WithArgs(int64(3), 2, "1", "2", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c, err := s.Update(context.Background(), 3, func(c *sos.Case) error {
		c.Status = sos.StatusEscalated
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != sos.StatusEscalated {
		t.Fatalf("status = %s", c.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateRollsBackOnRuleFailure(t *testing.T) {
	s, mock := newMock(t)
	created := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("for update").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(caseColumns()).
			AddRow(int64(3), victim.String(), 3, "1", "2", created, nil, nil))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), 3, func(c *sos.Case) error {
		if c.Status.Terminal() {
			return sos.ErrInvalidState
		}
		return nil
	})
	if !errors.Is(err, sos.ErrInvalidState) {
		t.Fatalf("got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGrantIdempotent(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec("insert into role_grants").
		WithArgs(victim.String(), "User").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.Grant(context.Background(), victim, roles.User); err != nil {
		t.Fatal(err)
	}

	// Conflict path: zero rows affected, still no error.
	mock.ExpectExec("insert into role_grants").
		WithArgs(victim.String(), "User").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := s.Grant(context.Background(), victim, roles.User); err != nil {
		t.Fatal(err)
	}
}

func TestHasRole(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("select count").
		WithArgs(victim.String(), "NGO").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	held, err := s.HasRole(context.Background(), victim, roles.NGO)
	if err != nil {
		t.Fatal(err)
	}
	if held {
		t.Fatal("phantom grant")
	}
}

func TestEngagementReportRequiresAccept(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select count").
		WithArgs(int64(1), volunteer.String(), int(engagement.Accept)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	err := s.Append(context.Background(), engagement.Entry{
		CaseID:    1,
		Volunteer: volunteer,
		Kind:      engagement.Report,
		At:        time.Now().UTC(),
	})
	if !errors.Is(err, sos.ErrMustAcceptFirst) {
		t.Fatalf("got %v", err)
	}
}

func TestLedgerCommitAdvancesLane(t *testing.T) {
	s, mock := newMock(t)
	ledger := NewLedger(s.DB())
	committed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("insert into ledger_lanes").
		WithArgs(victim.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select next_sequence").
		WithArgs(victim.String()).
		WillReturnRows(sqlmock.NewRows([]string{"next_sequence"}).AddRow(1))
	mock.ExpectQuery("insert into ledger_actions").
		WithArgs(victim.String(), uint64(1), "create_case", int64(0), []byte("{}")).
		WillReturnRows(sqlmock.NewRows([]string{"committed_at"}).AddRow(committed))
	mock.ExpectExec("update ledger_lanes").
		WithArgs(victim.String(), uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	receipt, err := ledger.Commit(context.Background(), submit.Action{
		Identity: victim,
		Kind:     "create_case",
		Sequence: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Sequence != 1 || !receipt.CommittedAt.Equal(committed) {
		t.Fatalf("receipt = %+v", receipt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLedgerCommitSequenceConflict(t *testing.T) {
	s, mock := newMock(t)
	ledger := NewLedger(s.DB())

	mock.ExpectBegin()
	mock.ExpectExec("insert into ledger_lanes").
		WithArgs(victim.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select next_sequence").
		WithArgs(victim.String()).
		WillReturnRows(sqlmock.NewRows([]string{"next_sequence"}).AddRow(4))
	mock.ExpectRollback()

	_, err := ledger.Commit(context.Background(), submit.Action{
		Identity: victim,
		Kind:     "resolve",
		Sequence: 2,
	})
	var seqErr *submit.SequenceError
	if !errors.As(err, &seqErr) {
		t.Fatalf("got %v", err)
	}
	if seqErr.Expected != 4 {
		t.Fatalf("expected = %d", seqErr.Expected)
	}
	if !errors.Is(err, sos.ErrSequenceConflict) {
		t.Fatalf("does not unwrap: %v", err)
	}
}
