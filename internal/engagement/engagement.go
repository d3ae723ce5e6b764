// Package engagement tracks which volunteers have engaged a case and in
// what sequence, independent of the case's own status field.
package engagement

import (
	"context"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

// Kind is the action kind of one log entry.
type Kind int

const (
	Accept Kind = iota + 1
	Report
	Query
)

func (k Kind) String() string {
	switch k {
	case Accept:
		return "accept"
	case Report:
		return "report"
	case Query:
		return "query"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind name on the wire.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Entry is one append-only log record. At is the ledger commit timestamp,
// never client-supplied, so ordering cannot be spoofed.
type Entry struct {
	CaseID    int64             `json:"case_id"`
	Volunteer principal.Address `json:"volunteer"`
	Kind      Kind              `json:"kind"`
	At        time.Time         `json:"at"`
}

// Store owns the engagement log, keyed by case id. It references cases by
// id only and never mutates them.
//
// Append enforces the per-(case, volunteer) sequence rule: an Accept must
// precede any Report, a second Accept fails with sos.ErrAlreadyAccepted,
// a Report without a prior Accept fails with sos.ErrMustAcceptFirst.
// Query has no precondition and does not affect Report eligibility.
type Store interface {
	Append(ctx context.Context, e Entry) error
	HasAccepted(ctx context.Context, caseID int64, volunteer principal.Address) (bool, error)
	AcceptedVolunteers(ctx context.Context, caseID int64) ([]principal.Address, error)
	LogsByCase(ctx context.Context, caseID int64) ([]Entry, error)
}
