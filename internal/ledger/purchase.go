package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"neighborhood.land/internal/plots"
)

// DecorationChoice is the house style applied at purchase time, validated
// against the finite catalogs.
type DecorationChoice struct {
	HouseType  string
	HouseColor string
}

func (s *Store) validateDecoration(c DecorationChoice) error {
	if c.HouseType != "" && !s.cats.ValidHouseType(c.HouseType) {
		return fmt.Errorf("%w: unknown house type %q", ErrInvalidInput, c.HouseType)
	}
	if c.HouseColor != "" && !s.cats.ValidHouseColor(c.HouseColor) {
		return fmt.Errorf("%w: unknown house color %q", ErrInvalidInput, c.HouseColor)
	}
	return nil
}

// Purchase assigns an unowned plot to an account and appends a purchase
// record, atomically. Preconditions are checked up front for precise
// errors, then re-validated inside the transaction: the pre-check alone
// would leave a check-then-act race window.
func (s *Store) Purchase(ctx context.Context, accountID, plotID string, choice DecorationChoice) (plots.Plot, error) {
	if accountID == "" || plotID == "" {
		return plots.Plot{}, ErrInvalidInput
	}

	if _, err := s.Account(ctx, accountID); err != nil {
		return plots.Plot{}, err
	}
	pre, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return plots.Plot{}, err
	}
	if pre.Owned() {
		s.metrics.conflicts.Add(1)
		return plots.Plot{}, ErrPlotAlreadyOwned
	}
	if owned, err := s.PlotOf(ctx, accountID); err != nil {
		return plots.Plot{}, err
	} else if owned != nil {
		s.metrics.conflicts.Add(1)
		return plots.Plot{}, ErrAccountHasPlot
	}
	if err := s.validateDecoration(choice); err != nil {
		return plots.Plot{}, err
	}

	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("begin purchase: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Commit-time re-validation of both ownership predicates.
	var owner sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT owner_id FROM plots WHERE id = ? AND deleted_at IS NULL`, plotID).Scan(&owner)
	if err == sql.ErrNoRows {
		return plots.Plot{}, ErrPlotNotFound
	}
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("purchase recheck: %w", err)
	}
	if owner.Valid && owner.String != "" {
		s.metrics.conflicts.Add(1)
		return plots.Plot{}, ErrPlotAlreadyOwned
	}
	var held int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plots WHERE owner_id = ? AND deleted_at IS NULL`, accountID).Scan(&held)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("purchase recheck: %w", err)
	}
	if held > 0 {
		s.metrics.conflicts.Add(1)
		return plots.Plot{}, ErrAccountHasPlot
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE plots SET owner_id = ?, house_type = ?, house_color = ?, updated_at = ?
		 WHERE id = ? AND owner_id IS NULL AND deleted_at IS NULL`,
		accountID, nullable(choice.HouseType), nullable(choice.HouseColor), formatTime(now), plotID)
	if err != nil {
		// The partial unique index on owner_id backstops the invariant even
		// if the recheck above is ever bypassed.
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("purchase assign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.metrics.conflicts.Add(1)
		return plots.Plot{}, ErrPlotAlreadyOwned
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO plot_transactions(plot_id, kind, account_id, previous_owner_id, new_owner_id, price, created_at)
		 VALUES(?, ?, ?, NULL, ?, ?, ?)`,
		plotID, plots.TxPurchase, accountID, accountID, pre.Price, formatTime(now))
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("purchase record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("purchase commit: %w", err)
	}
	committed = true
	s.metrics.purchases.Add(1)

	p, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return plots.Plot{}, err
	}
	s.writeAudit(AuditEntry{
		Kind:       plots.TxPurchase,
		PlotID:     plotID,
		AccountID:  accountID,
		NewOwnerID: accountID,
		Price:      pre.Price,
		At:         now,
	})
	s.emit("purchase", p)
	return p, nil
}

// Sell releases a plot owned by accountID, clears its decoration, and
// appends a sale record.
func (s *Store) Sell(ctx context.Context, accountID, plotID string) (plots.Plot, error) {
	if accountID == "" || plotID == "" {
		return plots.Plot{}, ErrInvalidInput
	}
	if _, err := s.Account(ctx, accountID); err != nil {
		return plots.Plot{}, err
	}
	pre, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return plots.Plot{}, err
	}
	if pre.OwnerID != accountID {
		s.metrics.conflicts.Add(1)
		return plots.Plot{}, ErrNotOwner
	}

	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("begin sale: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE plots SET owner_id = NULL, house_type = NULL, house_color = NULL, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		formatTime(now), plotID, accountID)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("sale clear: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.metrics.conflicts.Add(1)
		return plots.Plot{}, ErrNotOwner
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO plot_transactions(plot_id, kind, account_id, previous_owner_id, new_owner_id, price, created_at)
		 VALUES(?, ?, ?, ?, NULL, ?, ?)`,
		plotID, plots.TxSale, accountID, accountID, pre.Price, formatTime(now))
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("sale record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("sale commit: %w", err)
	}
	committed = true
	s.metrics.sales.Add(1)

	p, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return plots.Plot{}, err
	}
	s.writeAudit(AuditEntry{
		Kind:            plots.TxSale,
		PlotID:          plotID,
		AccountID:       accountID,
		PreviousOwnerID: accountID,
		Price:           pre.Price,
		At:              now,
	})
	s.emit("sale", p)
	return p, nil
}

// UpdateDecorations changes the house style of a plot the account owns.
func (s *Store) UpdateDecorations(ctx context.Context, accountID, plotID string, choice DecorationChoice) (plots.Plot, error) {
	if accountID == "" || plotID == "" {
		return plots.Plot{}, ErrInvalidInput
	}
	pre, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return plots.Plot{}, err
	}
	if pre.OwnerID != accountID {
		return plots.Plot{}, ErrNotOwner
	}
	if err := s.validateDecoration(choice); err != nil {
		return plots.Plot{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE plots SET house_type = ?, house_color = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`,
		nullable(choice.HouseType), nullable(choice.HouseColor), formatTime(s.now()), plotID, accountID)
	if err != nil {
		s.metrics.storageFaults.Add(1)
		return plots.Plot{}, fmt.Errorf("update decorations: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Ownership moved between the pre-check and the guarded update.
		s.metrics.conflicts.Add(1)
		return plots.Plot{}, ErrNotOwner
	}

	p, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return plots.Plot{}, err
	}
	s.emit("update", p)
	return p, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
