package sos

import (
	"errors"
	"time"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

// Status is the case lifecycle state. The graph is strictly forward:
//
//	Pending -> Acknowledged | Escalated | FalseAlarm
//	Acknowledged -> Escalated | Resolved
//	Escalated -> Resolved
//
// Resolved and FalseAlarm are absorbing.
type Status int

const (
	StatusPending Status = iota
	StatusAcknowledged
	StatusEscalated
	StatusResolved
	StatusFalseAlarm
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusEscalated:
		return "escalated"
	case StatusResolved:
		return "resolved"
	case StatusFalseAlarm:
		return "false_alarm"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFalseAlarm
}

// MarshalText renders the status name on the wire.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Case is one SOS incident. Victim and CreatedAt are immutable after
// creation; CreatedAt is the origin for every age-based threshold.
// Coordinates are stored exactly as the caller supplied them and only
// parsed when a distance is computed.
type Case struct {
	ID                int64             `json:"id"`
	Victim            principal.Address `json:"victim"`
	Status            Status            `json:"status"`
	Latitude          string            `json:"latitude"`
	Longitude         string            `json:"longitude"`
	CreatedAt         time.Time         `json:"created_at"`
	AssignedVolunteer principal.Address `json:"assigned_volunteer,omitzero"`
	AcknowledgedBy    principal.Address `json:"acknowledged_by,omitzero"`
}

// ActionRecord is one entry of the append-only per-case history.
type ActionRecord struct {
	CaseID int64             `json:"case_id"`
	Action string            `json:"action"`
	Actor  principal.Address `json:"actor"`
	At     time.Time         `json:"at"`
}

// Error taxonomy. The HTTP boundary maps these to stable machine-readable
// codes; nothing else crosses it.
var (
	ErrNotFound         = errors.New("case not found")
	ErrInvalidState     = errors.New("transition illegal from current status")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrAlreadyAccepted  = errors.New("volunteer already accepted this case")
	ErrMustAcceptFirst  = errors.New("must accept case before submitting report")
	ErrValidation       = errors.New("invalid input")
	ErrCommitFailed     = errors.New("ledger commit failed")
	ErrSequenceConflict = errors.New("sequence number conflict")
)
