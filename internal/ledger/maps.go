package ledger

import (
	"context"
	"fmt"

	"neighborhood.land/internal/mapdata"
)

// ImportMap seeds the plots of a map document into the ledger and marks
// the map active, retiring any previously active map. Items whose
// category is not a known plot type are decorative and skipped. Importing
// the same document twice is an error; maps are immutable once seeded.
func (s *Store) ImportMap(ctx context.Context, doc mapdata.Document) (int, error) {
	if err := doc.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return 0, fmt.Errorf("begin import: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM maps WHERE id = ?`, doc.ID).Scan(&exists); err != nil {
		s.metrics.storageFaults.Add(1)
		return 0, fmt.Errorf("import lookup: %w", err)
	}
	if exists > 0 {
		return 0, fmt.Errorf("%w: map %q already imported", ErrInvalidInput, doc.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE maps SET active = 0 WHERE active = 1`); err != nil {
		s.metrics.storageFaults.Add(1)
		return 0, fmt.Errorf("retire active map: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO maps(id, name, active, created_at) VALUES(?, ?, 1, ?)`,
		doc.ID, doc.Name, formatTime(now)); err != nil {
		s.metrics.storageFaults.Add(1)
		return 0, fmt.Errorf("insert map: %w", err)
	}

	seeded := 0
	for _, it := range doc.Plots(s.cats.ValidPlotType) {
		price := it.Properties.Price
		if price <= 0 {
			price = s.cats.PlotBasePrice(it.Category)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO plots(id, map_id, name, x, y, width, height, plot_type, price, created_at, updated_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, doc.ID, it.Properties.Name, it.X, it.Y, it.Width, it.Height,
			it.Category, price, formatTime(now), formatTime(now))
		if err != nil {
			s.metrics.storageFaults.Add(1)
			return 0, fmt.Errorf("seed plot %q: %w", it.ID, err)
		}
		seeded++
	}

	if err := tx.Commit(); err != nil {
		s.metrics.storageFaults.Add(1)
		return 0, fmt.Errorf("import commit: %w", err)
	}
	committed = true
	if s.log != nil {
		s.log.Printf("imported map %s: %d plots", doc.ID, seeded)
	}
	return seeded, nil
}

// RetireMap soft-deletes a map and marks it inactive. Its plots stay in
// the ledger for history but drop out of every listing.
func (s *Store) RetireMap(ctx context.Context, mapID string) error {
	if mapID == "" {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE maps SET active = 0, deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(s.now()), mapID)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return fmt.Errorf("retire map: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMapNotFound
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE plots SET deleted_at = ? WHERE map_id = ? AND deleted_at IS NULL`,
		formatTime(s.now()), mapID)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return fmt.Errorf("retire map plots: %w", err)
	}
	return nil
}

// RemovePlot soft-deletes a single plot. Owned plots must be sold first.
func (s *Store) RemovePlot(ctx context.Context, plotID string) error {
	p, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return err
	}
	if p.Owned() {
		return ErrPlotAlreadyOwned
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE plots SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(s.now()), plotID)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return fmt.Errorf("remove plot: %w", err)
	}
	return nil
}
