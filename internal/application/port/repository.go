package port

import (
	"context"

	"xfolio/internal/domain"
)

// Repository 行情与快照持久化（可选，失败不影响引擎）
type Repository interface {
	UpsertLatestPrice(ctx context.Context, assetID string, price, change24h float64, ts int64) error
	InsertSnapshot(ctx context.Context, ts int64, totalValue float64, payload string) error
}

// AssetStore 持仓列表的后备存储
// 启动时读取一次初始列表；此后由注册表变更回调镜像每次 add/remove
type AssetStore interface {
	LoadAssets(ctx context.Context) ([]domain.Holding, error)
	SaveAsset(ctx context.Context, h domain.Holding) error
	DeleteAsset(ctx context.Context, id string) error
}

// FeedStatusRecorder 可选：记录行情连接状态迁移（Redis stream）
type FeedStatusRecorder interface {
	RecordFeedStatus(ctx context.Context, ts int64, state string, degraded bool, lastErr string) error
}
