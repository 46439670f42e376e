package ledger

import (
	"context"
	"fmt"
	"time"
)

// CommunityStats summarizes the active map for the stats endpoint.
type CommunityStats struct {
	TotalPlots     int     `json:"total_plots"`
	OwnedPlots     int     `json:"owned_plots"`
	AvailablePlots int     `json:"available_plots"`
	OwnedPercent   float64 `json:"owned_percent"`
	Residents      int     `json:"residents"`
	TotalLikes     int     `json:"total_likes"`
}

// Activity is one entry of the community feed, derived from the
// transaction records.
type Activity struct {
	Kind      string    `json:"kind"`
	PlotID    string    `json:"plot_id"`
	PlotName  string    `json:"plot_name,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	Price     float64   `json:"price,omitempty"`
	At        time.Time `json:"at"`
}

// Stats computes occupancy counts for the active map.
func (s *Store) Stats(ctx context.Context) (CommunityStats, error) {
	mapID, err := s.ActiveMapID(ctx)
	if err != nil {
		return CommunityStats{}, err
	}

	var st CommunityStats
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(owner_id),
			COALESCE(SUM(likes_count), 0)
		 FROM plots WHERE map_id = ? AND deleted_at IS NULL`, mapID).
		Scan(&st.TotalPlots, &st.OwnedPlots, &st.TotalLikes)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return CommunityStats{}, fmt.Errorf("community stats: %w", err)
	}
	st.AvailablePlots = st.TotalPlots - st.OwnedPlots
	st.Residents = st.OwnedPlots // one plot per account
	if st.TotalPlots > 0 {
		st.OwnedPercent = float64(st.OwnedPlots) / float64(st.TotalPlots) * 100
	}
	return st, nil
}

// Activities returns the recent feed derived from the transaction log,
// newest first, with plot names joined in.
func (s *Store) Activities(ctx context.Context, limit int) ([]Activity, error) {
	recs, err := s.RecentTransactions(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Activity, 0, len(recs))
	for _, r := range recs {
		a := Activity{
			Kind:      r.Kind,
			PlotID:    r.PlotID,
			AccountID: r.AccountID,
			Price:     r.Price,
			At:        r.CreatedAt,
		}
		if p, err := s.GetPlot(ctx, r.PlotID); err == nil {
			a.PlotName = p.Name
		}
		out = append(out, a)
	}
	return out, nil
}
