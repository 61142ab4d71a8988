package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"xfolio/internal/application/port"
	"xfolio/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS assets (
  id TEXT PRIMARY KEY,
  quantity REAL NOT NULL,
  position INTEGER NOT NULL,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assets_position ON assets(position);

CREATE TABLE IF NOT EXISTS prices (
  asset_id TEXT PRIMARY KEY,
  price REAL NOT NULL,
  change_24h REAL NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prices_ts ON prices(ts_ms);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ts_ms INTEGER NOT NULL,
  total_value REAL NOT NULL,
  payload TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts_ms);
`)
	return err
}

// LoadAssets 按插入顺序读取持仓
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

// SaveAsset 新增持仓追加到末尾；已存在时只更新数量，保留原位置
func (r *Repo) SaveAsset(ctx context.Context, h domain.Holding) error {
	now := time.Now().UnixMilli()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets(id, quantity, position, created_at, updated_at)
		VALUES(?, ?, COALESCE((SELECT MAX(position) FROM assets), 0) + 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		quantity=excluded.quantity, updated_at=excluded.updated_at
	`, h.ID, h.Quantity, now, now)
	return err
}

func (r *Repo) DeleteAsset(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id=?`, id)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, assetID string, price, change24h float64, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices(asset_id, price, change_24h, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
		price=excluded.price, change_24h=excluded.change_24h, ts_ms=excluded.ts_ms
	`, assetID, price, change24h, ts, ts)
	return err
}

// GetLatestPrice 最后一次持久化的价格
func (r *Repo) GetLatestPrice(ctx context.Context, assetID string) (price, change24h float64, ts int64, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT price, change_24h, ts_ms FROM prices WHERE asset_id=?`, assetID).
		Scan(&price, &change24h, &ts)
	return
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, totalValue float64, payload string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO snapshots(ts_ms, total_value, payload, created_at) VALUES(?, ?, ?, ?)`,
		ts, totalValue, payload, ts)
	return err
}

// LatestSnapshot 最近一次快照
func (r *Repo) LatestSnapshot(ctx context.Context) (ts int64, totalValue float64, payload string, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT ts_ms, total_value, payload FROM snapshots ORDER BY ts_ms DESC, id DESC LIMIT 1`).
		Scan(&ts, &totalValue, &payload)
	return
}

var (
	_ port.Repository = (*Repo)(nil)
	_ port.AssetStore = (*Repo)(nil)
)
