package tracker

import (
	"context"

	"xfolio/internal/application/port"
)

type noopRepo struct{}

func NewNoopRepo() port.Repository { return &noopRepo{} }

func (n *noopRepo) UpsertLatestPrice(ctx context.Context, assetID string, price, change24h float64, ts int64) error {
	return nil
}

func (n *noopRepo) InsertSnapshot(ctx context.Context, ts int64, totalValue float64, payload string) error {
	return nil
}
