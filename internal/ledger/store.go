// Package ledger is the authoritative record of which account owns which
// plot. All ownership mutation goes through it; presentation caches (the
// live ws feed included) are disposable replicas.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"neighborhood.land/internal/catalogs"
	"neighborhood.land/internal/plots"
)

// AuditSink receives one entry per committed ownership change.
type AuditSink interface {
	WriteAudit(e AuditEntry) error
}

// AuditEntry mirrors the transaction record for the append-only JSONL trail.
type AuditEntry struct {
	Kind            string    `json:"kind"`
	PlotID          string    `json:"plot_id"`
	AccountID       string    `json:"account_id,omitempty"`
	PreviousOwnerID string    `json:"previous_owner_id,omitempty"`
	NewOwnerID      string    `json:"new_owner_id,omitempty"`
	Price           float64   `json:"price,omitempty"`
	At              time.Time `json:"at"`
}

// Event is pushed to the notifier after a committed mutation. Cosmetic
// consumers only; never consulted for correctness.
type Event struct {
	Kind string // "purchase", "sale", "update", "like"
	Plot plots.Plot
}

type Store struct {
	db   *sql.DB
	cats *catalogs.Catalogs
	log  *log.Logger

	audit  AuditSink
	notify func(Event)

	now func() time.Time

	metrics Metrics
}

func NewStore(db *sql.DB, cats *catalogs.Catalogs, logger *log.Logger) *Store {
	return &Store{
		db:   db,
		cats: cats,
		log:  logger,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetAuditSink installs the audit trail writer. Audit failures are logged,
// never propagated: the DB transaction record is the source of truth.
func (s *Store) SetAuditSink(sink AuditSink) { s.audit = sink }

// SetNotifier installs the post-commit event fan-out.
func (s *Store) SetNotifier(fn func(Event)) { s.notify = fn }

func (s *Store) emit(kind string, p plots.Plot) {
	if s.notify != nil {
		s.notify(Event{Kind: kind, Plot: p})
	}
}

func (s *Store) writeAudit(e AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.WriteAudit(e); err != nil && s.log != nil {
		s.log.Printf("audit write: %v", err)
	}
}

const plotColumns = `id, map_id, name, x, y, width, height, plot_type, price,
	owner_id, house_type, house_color, likes_count, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlot(r rowScanner) (plots.Plot, error) {
	var p plots.Plot
	var owner, houseType, houseColor sql.NullString
	var createdAt, updatedAt string
	var deletedAt sql.NullString
	err := r.Scan(&p.ID, &p.MapID, &p.Name, &p.X, &p.Y, &p.Width, &p.Height,
		&p.PlotType, &p.Price, &owner, &houseType, &houseColor, &p.LikesCount,
		&createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return p, err
	}
	p.OwnerID = owner.String
	p.HouseType = houseType.String
	p.HouseColor = houseColor.String
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		p.DeletedAt = &t
	}
	return p, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// GetPlot returns a non-deleted plot by id.
func (s *Store) GetPlot(ctx context.Context, id string) (plots.Plot, error) {
	if id == "" {
		return plots.Plot{}, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+plotColumns+` FROM plots WHERE id = ? AND deleted_at IS NULL`, id)
	p, err := scanPlot(row)
	if err == sql.ErrNoRows {
		return plots.Plot{}, ErrPlotNotFound
	}
	if err != nil {
		return plots.Plot{}, fmt.Errorf("get plot: %w", err)
	}
	return p, nil
}

// ListPlots returns every non-deleted plot on a map, newest first.
func (s *Store) ListPlots(ctx context.Context, mapID string) ([]plots.Plot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+plotColumns+` FROM plots WHERE map_id = ? AND deleted_at IS NULL ORDER BY created_at DESC, id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("list plots: %w", err)
	}
	defer rows.Close()
	return collectPlots(rows)
}

// AllPlots returns every non-deleted plot across maps, newest first.
func (s *Store) AllPlots(ctx context.Context) ([]plots.Plot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+plotColumns+` FROM plots WHERE deleted_at IS NULL ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list plots: %w", err)
	}
	defer rows.Close()
	return collectPlots(rows)
}

// AvailablePlots returns unowned, non-deleted plots on the active map.
func (s *Store) AvailablePlots(ctx context.Context) ([]plots.Plot, error) {
	mapID, err := s.ActiveMapID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+plotColumns+` FROM plots WHERE map_id = ? AND owner_id IS NULL AND deleted_at IS NULL ORDER BY id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("available plots: %w", err)
	}
	defer rows.Close()
	return collectPlots(rows)
}

func collectPlots(rows *sql.Rows) ([]plots.Plot, error) {
	var out []plots.Plot
	for rows.Next() {
		p, err := scanPlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plot: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plots: %w", err)
	}
	return out, nil
}

// FindAdjacent returns the plots bordering plotID on the same map.
// The scan is linear over the map's plot set; community maps stay in the
// hundreds of plots, so no spatial partitioning is needed yet.
func (s *Store) FindAdjacent(ctx context.Context, plotID string) ([]plots.Plot, error) {
	s.metrics.adjacencyQueries.Add(1)
	target, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return nil, err
	}
	all, err := s.ListPlots(ctx, target.MapID)
	if err != nil {
		return nil, err
	}
	return plots.AdjacentPlots(target, all), nil
}

// OwnerOf returns the owning account id, or "" when the plot is unowned.
func (s *Store) OwnerOf(ctx context.Context, plotID string) (string, error) {
	p, err := s.GetPlot(ctx, plotID)
	if err != nil {
		return "", err
	}
	return p.OwnerID, nil
}

// PlotOf returns the plot owned by accountID, or nil when the account
// owns nothing.
func (s *Store) PlotOf(ctx context.Context, accountID string) (*plots.Plot, error) {
	if accountID == "" {
		return nil, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+plotColumns+` FROM plots WHERE owner_id = ? AND deleted_at IS NULL`, accountID)
	p, err := scanPlot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("plot of account: %w", err)
	}
	return &p, nil
}

// ActiveMapID returns the id of the active community map.
func (s *Store) ActiveMapID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM maps WHERE active = 1 AND deleted_at IS NULL LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrMapNotFound
	}
	if err != nil {
		return "", fmt.Errorf("active map: %w", err)
	}
	return id, nil
}
