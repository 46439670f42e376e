// Package postgres mirrors the community state into a Postgres instance
// as JSON buckets. The mirror is a read replica for dashboards and backup
// tooling; sqlite remains authoritative and the mirror is rebuilt from it
// on every sync.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"neighborhood.land/internal/ledger"
)

const driverName = "pgx"

type Mirror struct {
	db  *sql.DB
	src *ledger.Store
	log *log.Logger
}

// Open connects to Postgres and ensures the state table exists.
func Open(ctx context.Context, dsn string, src *ledger.Store, logger *log.Logger) (*Mirror, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	return &Mirror{db: db, src: src, log: logger}, nil
}

func (m *Mirror) Close() error { return m.db.Close() }

// Sync exports a snapshot from the ledger and upserts each bucket.
func (m *Mirror) Sync(ctx context.Context) error {
	exp, err := m.src.ExportState(ctx)
	if err != nil {
		return fmt.Errorf("export state: %w", err)
	}

	buckets := map[string]any{
		"plots":               exp.Plots,
		"accounts":            exp.Accounts,
		"recent_transactions": exp.Recent,
		"stats":               exp.Stats,
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mirror sync: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for bucket, v := range buckets {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO state(bucket,payload,updated_at) VALUES($1,$2,now())
			 ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload, updated_at=now()`,
			bucket, data)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mirror sync: %w", err)
	}
	committed = true
	return nil
}

// Run syncs on the given interval until ctx is done. Failures are logged
// and retried next tick.
func (m *Mirror) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.Sync(ctx); err != nil && m.log != nil {
				m.log.Printf("postgres mirror sync: %v", err)
			}
		}
	}
}
