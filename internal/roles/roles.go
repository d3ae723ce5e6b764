// Package roles holds capability grants: principal -> set of role labels.
// Grants are monotonic; revocation is out of scope for this core.
package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
)

// Label is one of the closed set of role labels.
type Label string

const (
	User      Label = "User"
	Volunteer Label = "Volunteer"
	NGO       Label = "NGO"
)

// ErrUnknownRole marks a label outside the closed set. The API boundary
// reports it as a ValidationError.
var ErrUnknownRole = errors.New("unknown role label")

// All lists the closed label set in a stable order.
func All() []Label { return []Label{User, Volunteer, NGO} }

// Normalize maps externally sourced spellings ("ngo", " USER ") onto the
// canonical label.
func Normalize(raw string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user":
		return User, nil
	case "volunteer":
		return Volunteer, nil
	case "ngo":
		return NGO, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Reconcile normalizes and deduplicates a batch of external role labels,
// preserving first occurrence order. Any unknown label fails the whole
// batch; duplicates of known labels merge silently.
func Reconcile(raw []string) ([]Label, error) {
	seen := make(map[Label]struct{}, len(raw))
	out := make([]Label, 0, len(raw))
	for _, r := range raw {
		label, err := Normalize(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out, nil
}

// Store answers membership queries and records grants. Grant is
// idempotent and has no error condition beyond storage failure; HasRole
// must observe a grant made earlier in the same logical operation.
type Store interface {
	Grant(ctx context.Context, p principal.Address, role Label) error
	HasRole(ctx context.Context, p principal.Address, role Label) (bool, error)
	RolesOf(ctx context.Context, p principal.Address) ([]Label, error)
}
