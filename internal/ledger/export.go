package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"neighborhood.land/internal/plots"
)

// StateExport is a consistent point-in-time snapshot of the ledger,
// consumed by the postgres mirror and the admin tooling.
type StateExport struct {
	GeneratedAt time.Time                `json:"generated_at"`
	MapID       string                   `json:"map_id,omitempty"`
	Plots       []plots.Plot             `json:"plots"`
	Accounts    []plots.Account          `json:"accounts"`
	Recent      []plots.TransactionRecord `json:"recent_transactions"`
	Stats       CommunityStats           `json:"stats"`
}

// ExportState snapshots the active map's plots, all accounts, the recent
// transaction tail, and the occupancy stats.
func (s *Store) ExportState(ctx context.Context) (StateExport, error) {
	out := StateExport{GeneratedAt: s.now()}

	mapID, err := s.ActiveMapID(ctx)
	if err != nil && err != ErrMapNotFound {
		return StateExport{}, err
	}
	out.MapID = mapID

	if mapID != "" {
		if out.Plots, err = s.ListPlots(ctx, mapID); err != nil {
			return StateExport{}, err
		}
		if out.Stats, err = s.Stats(ctx); err != nil {
			return StateExport{}, err
		}
	}
	if out.Accounts, err = s.AllAccounts(ctx); err != nil {
		return StateExport{}, err
	}
	if out.Recent, err = s.RecentTransactions(ctx, 50); err != nil {
		return StateExport{}, err
	}
	return out, nil
}

// AllAccounts lists every non-deleted account.
func (s *Store) AllAccounts(ctx context.Context) ([]plots.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, display_name, created_at, deleted_at
		 FROM accounts WHERE deleted_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []plots.Account
	for rows.Next() {
		var a plots.Account
		var createdAt string
		var deletedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.DisplayName, &createdAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		if deletedAt.Valid {
			t := parseTime(deletedAt.String)
			a.DeletedAt = &t
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return out, nil
}
