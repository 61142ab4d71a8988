package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"xfolio/internal/application/port"
	"xfolio/internal/domain"
)

type Repo struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	keyLatest    string // prefix + ":latest"
	keySnapshot  string // prefix + ":snapshot"
	keyAssets    string // prefix + ":assets"       hash id -> quantity
	keyOrder     string // prefix + ":assets:order" zset id, score = 插入序号
	keySeq       string // prefix + ":assets:seq"
	statusStream string
	snapshotChan string
}

type LatestPrice struct {
	Asset     string  `json:"asset"`
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Ts        int64   `json:"ts"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, statusStream, snapshotChan string) *Repo {
	if strings.TrimSpace(statusStream) == "" {
		statusStream = prefix + ":feed"
	}
	if strings.TrimSpace(snapshotChan) == "" {
		snapshotChan = prefix + ":snapshot:pub"
	}
	return &Repo{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		keyLatest:    prefix + ":latest",
		keySnapshot:  prefix + ":snapshot",
		keyAssets:    prefix + ":assets",
		keyOrder:     prefix + ":assets:order",
		keySeq:       prefix + ":assets:seq",
		statusStream: statusStream,
		snapshotChan: snapshotChan,
	}
}

func (r *Repo) LoadAssets(ctx context.Context) ([]domain.Holding, error) {
	ids, err := r.rdb.ZRange(ctx, r.keyOrder, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := r.rdb.HMGet(ctx, r.keyAssets, ids...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Holding, 0, len(ids))
	for i, id := range ids {
		s, ok := vals[i].(string)
		if !ok {
			// order 与 hash 不一致（手工删除过），跳过
			continue
		}
		qty, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("asset %s quantity %q: %w", id, s, err)
		}
		out = append(out, domain.Holding{ID: id, Quantity: qty})
	}
	return out, nil
}

// SaveAsset 已存在的 id 保留原插入序号（ZADD NX）
func (r *Repo) SaveAsset(ctx context.Context, h domain.Holding) error {
	seq, err := r.rdb.Incr(ctx, r.keySeq).Result()
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.keyAssets, h.ID, strconv.FormatFloat(h.Quantity, 'f', -1, 64))
	pipe.ZAddNX(ctx, r.keyOrder, redis.Z{Score: float64(seq), Member: h.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) DeleteAsset(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.HDel(ctx, r.keyAssets, id)
	pipe.ZRem(ctx, r.keyOrder, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, assetID string, price, change24h float64, ts int64) error {
	if price <= 0 {
		return nil
	}
	lp := LatestPrice{Asset: assetID, Price: price, Change24h: change24h, Ts: ts}
	b, _ := json.Marshal(lp)

	// Hash: field = "BTC" -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, assetID, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// InsertSnapshot 覆盖最近快照并广播给订阅者
func (r *Repo) InsertSnapshot(ctx context.Context, ts int64, totalValue float64, payload string) error {
	if err := r.rdb.Set(ctx, r.keySnapshot, payload, r.ttl).Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf(`{"ts_ms":%d,"total_value":%.8f,"payload":%s}`, ts, totalValue, payload)
	return r.rdb.Publish(ctx, r.snapshotChan, msg).Err()
}

// RecordFeedStatus XADD <stream> * ts_ms state degraded error
func (r *Repo) RecordFeedStatus(ctx context.Context, ts int64, state string, degraded bool, lastErr string) error {
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.statusStream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]any{
			"ts_ms":    ts,
			"state":    state,
			"degraded": strconv.FormatBool(degraded),
			"error":    lastErr,
		},
	}).Err()
}

var (
	_ port.Repository         = (*Repo)(nil)
	_ port.AssetStore         = (*Repo)(nil)
	_ port.FeedStatusRecorder = (*Repo)(nil)
)
