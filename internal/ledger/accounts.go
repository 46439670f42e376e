package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"neighborhood.land/internal/plots"
)

// Account returns a non-deleted account by id.
func (s *Store) Account(ctx context.Context, id string) (plots.Account, error) {
	if id == "" {
		return plots.Account{}, ErrInvalidInput
	}
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, display_name, created_at, deleted_at
		 FROM accounts WHERE id = ? AND deleted_at IS NULL`, id))
}

// AccountByUser resolves the account bound to an external user identity.
// The user_id column is unique, so at most one row matches.
func (s *Store) AccountByUser(ctx context.Context, userID string) (plots.Account, error) {
	if userID == "" {
		return plots.Account{}, ErrInvalidInput
	}
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, display_name, created_at, deleted_at
		 FROM accounts WHERE user_id = ? AND deleted_at IS NULL`, userID))
}

func (s *Store) scanAccount(row *sql.Row) (plots.Account, error) {
	var a plots.Account
	var createdAt string
	var deletedAt sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &a.DisplayName, &createdAt, &deletedAt)
	if err == sql.ErrNoRows {
		return plots.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return plots.Account{}, fmt.Errorf("get account: %w", err)
	}
	a.CreatedAt = parseTime(createdAt)
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		a.DeletedAt = &t
	}
	return a, nil
}

// CreateAccount registers an account for a user identity. Re-registering
// an existing user returns the account already bound to it.
func (s *Store) CreateAccount(ctx context.Context, id, userID, displayName string) (plots.Account, error) {
	if id == "" || userID == "" {
		return plots.Account{}, ErrInvalidInput
	}
	if existing, err := s.AccountByUser(ctx, userID); err == nil {
		return existing, nil
	} else if err != ErrAccountNotFound {
		return plots.Account{}, err
	}

	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts(id, user_id, display_name, created_at) VALUES(?, ?, ?, ?)`,
		id, userID, displayName, formatTime(now))
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Account{}, fmt.Errorf("create account: %w", err)
	}
	return plots.Account{ID: id, UserID: userID, DisplayName: displayName, CreatedAt: now}, nil
}

// RemoveAccount soft-deletes an account. Any plot it owns is released
// first so the ledger never points at a deleted owner.
func (s *Store) RemoveAccount(ctx context.Context, id string) error {
	a, err := s.Account(ctx, id)
	if err != nil {
		return err
	}
	if owned, err := s.PlotOf(ctx, a.ID); err != nil {
		return err
	} else if owned != nil {
		if _, err := s.Sell(ctx, a.ID, owned.ID); err != nil {
			return err
		}
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE accounts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(s.now()), id)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return fmt.Errorf("remove account: %w", err)
	}
	return nil
}
