package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"neighborhood.land/internal/plots"
)

// History returns a plot's transaction records, most recent first. The
// autoincrement id advances with commit order on the single writer
// connection, so reverse id order is newest first even when timestamps
// collide (RFC3339Nano TEXT is not lexically monotonic across the
// whole-second boundary). A plot with no records, unknown plots included,
// yields an empty history: the only failures are an empty id and storage
// faults. limit <= 0 means no limit.
func (s *Store) History(ctx context.Context, plotID string, limit int) ([]plots.TransactionRecord, error) {
	if plotID == "" {
		return nil, ErrInvalidInput
	}

	q := `SELECT id, plot_id, kind, account_id, previous_owner_id, new_owner_id, price, created_at
		FROM plot_transactions WHERE plot_id = ?
		ORDER BY id DESC`
	args := []any{plotID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return nil, fmt.Errorf("plot history: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// RecentTransactions returns the latest records across all plots, most
// recent first.
func (s *Store) RecentTransactions(ctx context.Context, limit int) ([]plots.TransactionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, plot_id, kind, account_id, previous_owner_id, new_owner_id, price, created_at
		 FROM plot_transactions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]plots.TransactionRecord, error) {
	var out []plots.TransactionRecord
	for rows.Next() {
		var r plots.TransactionRecord
		var account, prev, next sql.NullString
		var price sql.NullFloat64
		var createdAt string
		err := rows.Scan(&r.Seq, &r.PlotID, &r.Kind, &account, &prev, &next, &price, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		r.AccountID = account.String
		r.PreviousOwnerID = prev.String
		r.NewOwnerID = next.String
		r.Price = price.Float64
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}
