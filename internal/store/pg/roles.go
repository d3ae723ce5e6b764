package pg

import (
	"context"

	"github.com/Sakshee21/SafeHavenWS/internal/principal"
	"github.com/Sakshee21/SafeHavenWS/internal/roles"
)

var _ roles.Store = (*Store)(nil)

// Grant is idempotent: re-granting a held role keeps the original
// granted_at so first-grant order is stable.
func (s *Store) Grant(ctx context.Context, p principal.Address, role roles.Label) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_grants(principal, role)
		values ($1,$2) on conflict (principal, role) do nothing
	`, p.String(), string(role))
	return err
}

func (s *Store) HasRole(ctx context.Context, p principal.Address, role roles.Label) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		select count(1) from role_grants where principal=$1 and role=$2
	`, p.String(), string(role)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) RolesOf(ctx context.Context, p principal.Address) ([]roles.Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role from role_grants where principal=$1 order by granted_at asc, role asc
	`, p.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []roles.Label
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		label, err := roles.Normalize(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, label)
	}
	return out, rows.Err()
}
