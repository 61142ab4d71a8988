package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"xfolio/internal/application/port"
	"xfolio/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS assets (
  id TEXT PRIMARY KEY,
  quantity DOUBLE PRECISION NOT NULL,
  position BIGSERIAL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prices (
  asset_id TEXT PRIMARY KEY,
  price DOUBLE PRECISION NOT NULL,
  change_24h DOUBLE PRECISION NOT NULL,
  ts_ms BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  total_value DOUBLE PRECISION NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);
`)
	return err
}

func (r *Repo) LoadAssets(ctx context.Context) ([]domain.Holding, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, quantity FROM assets ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.ID, &h.Quantity); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SaveAsset position 由序列分配，冲突更新时保持不变
func (r *Repo) SaveAsset(ctx context.Context, h domain.Holding) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets(id, quantity) VALUES($1, $2)
		ON CONFLICT(id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=now()
	`, h.ID, h.Quantity)
	return err
}

func (r *Repo) DeleteAsset(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id=$1`, id)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, assetID string, price, change24h float64, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices(asset_id, price, change_24h, ts_ms) VALUES($1, $2, $3, $4)
		ON CONFLICT(asset_id) DO UPDATE SET
		price=EXCLUDED.price, change_24h=EXCLUDED.change_24h, ts_ms=EXCLUDED.ts_ms
	`, assetID, price, change24h, ts)
	return err
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, totalValue float64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, total_value, payload) VALUES($1, $2, $3)`,
		ts, totalValue, payload)
	return err
}

var (
	_ port.Repository = (*Repo)(nil)
	_ port.AssetStore = (*Repo)(nil)
)
