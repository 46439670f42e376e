package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"neighborhood.land/internal/plots"
)

// ToggleLike flips the account's like on a plot and returns the plot with
// the refreshed count plus whether the plot is now liked by the account.
func (s *Store) ToggleLike(ctx context.Context, accountID, plotID string) (plots.Plot, bool, error) {
	if accountID == "" || plotID == "" {
		return plots.Plot{}, false, ErrInvalidInput
	}
	if _, err := s.Account(ctx, accountID); err != nil {
		return plots.Plot{}, false, err
	}
	if _, err := s.GetPlot(ctx, plotID); err != nil {
		return plots.Plot{}, false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, false, fmt.Errorf("begin like: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plot_likes WHERE plot_id = ? AND account_id = ?`,
		plotID, accountID).Scan(&exists)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, false, fmt.Errorf("like lookup: %w", err)
	}

	liked := exists == 0
	if liked {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO plot_likes(plot_id, account_id, created_at) VALUES(?, ?, ?)`,
			plotID, accountID, formatTime(s.now()))
		if err == nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE plots SET likes_count = likes_count + 1 WHERE id = ?`, plotID)
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM plot_likes WHERE plot_id = ? AND account_id = ?`, plotID, accountID)
		if err == nil {
			_, err = tx.ExecContext(ctx,
				`UPDATE plots SET likes_count = MAX(likes_count - 1, 0) WHERE id = ?`, plotID)
		}
	}
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, false, fmt.Errorf("toggle like: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, false, fmt.Errorf("like commit: %w", err)
	}
	committed = true

	p, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return plots.Plot{}, false, err
	}
	s.emit("like", p)
	return p, liked, nil
}

// Liked reports whether the account currently likes the plot.
func (s *Store) Liked(ctx context.Context, accountID, plotID string) (bool, error) {
	if accountID == "" || plotID == "" {
		return false, ErrInvalidInput
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plot_likes WHERE plot_id = ? AND account_id = ?`,
		plotID, accountID).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("like lookup: %w", err)
	}
	return n > 0, nil
}
