package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// IsUserAllowed reports whether a tailnet login may use the API. An empty
// allowlist admits everyone.
func (db *DB) IsUserAllowed(ctx context.Context, login string) (bool, error) {
	var allowed bool
	err := db.q.QueryRow(ctx,
		`SELECT NOT EXISTS (SELECT 1 FROM allowed_users)
		     OR EXISTS (SELECT 1 FROM allowed_users WHERE login = $1)`,
		login).Scan(&allowed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking user allowlist: %w", err)
	}
	return allowed, nil
}

// AllowUser adds a login to the allowlist.
func (db *DB) AllowUser(ctx context.Context, login string) error {
	_, err := db.q.Exec(ctx,
		`INSERT INTO allowed_users (login) VALUES ($1) ON CONFLICT DO NOTHING`, login)
	if err != nil {
		return fmt.Errorf("allowing user %s: %w", login, err)
	}
	return nil
}

// GetAllowedUsers returns every login in the allowlist.
func (db *DB) GetAllowedUsers(ctx context.Context) ([]string, error) {
	rows, err := db.q.Query(ctx, `SELECT login FROM allowed_users ORDER BY login`)
	if err != nil {
		return nil, fmt.Errorf("querying allowlist: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var login string
		if err := rows.Scan(&login); err != nil {
			return nil, fmt.Errorf("scanning allowlist: %w", err)
		}
		result = append(result, login)
	}
	return result, rows.Err()
}
