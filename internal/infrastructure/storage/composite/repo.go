package composite

import (
	"context"
	"errors"

	"xfolio/internal/application/port"
	"xfolio/internal/domain"
)

// Repo 把行情与快照写入扇出到所有已启用的后端
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertLatestPrice(ctx context.Context, assetID string, price, change24h float64, ts int64) error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.UpsertLatestPrice(ctx, assetID, price, change24h, ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, totalValue float64, payload string) error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.InsertSnapshot(ctx, ts, totalValue, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordFeedStatus 只转发给支持状态记录的后端
func (r *Repo) RecordFeedStatus(ctx context.Context, ts int64, state string, degraded bool, lastErr string) error {
	var errs []error
	for _, repo := range r.repos {
		rec, ok := repo.(port.FeedStatusRecorder)
		if !ok {
			continue
		}
		if err := rec.RecordFeedStatus(ctx, ts, state, degraded, lastErr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Assets 持仓后备存储：从第一个（主）后端加载，写入镜像到全部后端
type Assets struct {
	stores []port.AssetStore
}

func NewAssets(stores ...port.AssetStore) *Assets {
	out := make([]port.AssetStore, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Assets{stores: out}
}

func (a *Assets) Len() int { return len(a.stores) }

func (a *Assets) LoadAssets(ctx context.Context) ([]domain.Holding, error) {
	if len(a.stores) == 0 {
		return nil, nil
	}
	return a.stores[0].LoadAssets(ctx)
}

func (a *Assets) SaveAsset(ctx context.Context, h domain.Holding) error {
	var errs []error
	for _, s := range a.stores {
		if err := s.SaveAsset(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Assets) DeleteAsset(ctx context.Context, id string) error {
	var errs []error
	for _, s := range a.stores {
		if err := s.DeleteAsset(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ port.Repository         = (*Repo)(nil)
	_ port.FeedStatusRecorder = (*Repo)(nil)
	_ port.AssetStore         = (*Assets)(nil)
)
