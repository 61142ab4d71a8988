package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"xfolio/internal/application/port"
	"xfolio/internal/domain"
)

type ServiceDeps struct {
	Dialer  port.StreamDialer
	Decoder port.FrameDecoder
	Topics  port.TopicMapper
	Retry   RetryConfig

	// Assets 持仓后备存储；nil 时只使用 Seed
	Assets port.AssetStore
	// Seed 后备存储为空时的初始持仓
	Seed []domain.Holding
	Repo port.Repository
	Sink port.Sink

	SnapshotEvery time.Duration
}

// Service 组装注册表、聚合引擎、状态容器和路由，并负责启动加载与变更镜像
type Service struct {
	deps ServiceDeps

	reg    *Registry
	store  *Store
	engine *Engine
	router *Router
	fmt    *Formatter

	jobs    chan persistJob
	loading bool

	// 持仓镜像队列：不限长度，入队不阻塞路由循环
	mirrorMu   sync.Mutex
	mirrorJobs []persistJob
	mirrorWake chan struct{}
}

type persistJob struct {
	name string
	fn   func(ctx context.Context) error
}

func NewService(deps ServiceDeps) *Service {
	if deps.Repo == nil {
		deps.Repo = NewNoopRepo()
	}
	if deps.SnapshotEvery <= 0 {
		deps.SnapshotEvery = 5 * time.Minute
	}

	reg := NewRegistry()
	store := NewStore()
	engine := NewEngine(reg, store)
	s := &Service{
		deps:   deps,
		reg:    reg,
		store:  store,
		engine: engine,
		fmt:    NewFormatter(),
		jobs:   make(chan persistJob, 1024),

		mirrorWake: make(chan struct{}, 1),
	}
	s.router = NewRouter(RouterDeps{
		Registry: reg,
		Engine:   engine,
		Store:    store,
		Dialer:   deps.Dialer,
		Decoder:  deps.Decoder,
		Topics:   deps.Topics,
		Retry:    deps.Retry,
		OnUpdate: s.persistPrice,
		OnStatus: s.recordStatus,
	})
	reg.OnChange(func(ChangeEvent) { engine.Recompute() })
	reg.OnChange(s.mirror)
	return s
}

// Load 从后备存储读取初始持仓，逐个按 Add 回放；必须在 Run 之前调用
func (s *Service) Load(ctx context.Context) error {
	var holdings []domain.Holding
	if s.deps.Assets != nil {
		hs, err := s.deps.Assets.LoadAssets(ctx)
		if err != nil {
			return fmt.Errorf("load assets: %w", err)
		}
		holdings = hs
	}

	s.loading = true
	for _, h := range holdings {
		if err := s.reg.Add(h.ID, h.Quantity); err != nil {
			log.Warn().Err(err).Str("asset", h.ID).Float64("quantity", h.Quantity).Msg("stored asset skipped")
		}
	}
	s.loading = false

	if len(holdings) == 0 {
		for _, h := range s.deps.Seed {
			if err := s.reg.Add(h.ID, h.Quantity); err != nil {
				log.Warn().Err(err).Str("asset", h.ID).Msg("seed asset skipped")
			}
		}
	}

	s.engine.Recompute()
	log.Info().Int("assets", s.reg.Len()).Msg("portfolio loaded")
	return nil
}

// Run 运行路由循环、持久化 worker 和渲染，直到 ctx 结束
func (s *Service) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.persistLoop(ctx)
	}()

	if s.deps.Sink != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.renderLoop(ctx)
		}()
	}

	err := s.router.Run(ctx)
	wg.Wait()
	return err
}

// Add 新增持仓（串行到路由循环）
func (s *Service) Add(ctx context.Context, id string, quantity float64) error {
	var err error
	if derr := s.router.Do(ctx, func() { err = s.reg.Add(id, quantity) }); derr != nil {
		return derr
	}
	return err
}

// Remove 删除持仓，返回是否存在
func (s *Service) Remove(ctx context.Context, id string) (bool, error) {
	var removed bool
	if err := s.router.Do(ctx, func() { removed = s.reg.Remove(id) }); err != nil {
		return false, err
	}
	return removed, nil
}

func (s *Service) Snapshot() Snapshot { return s.store.Snapshot() }

func (s *Service) Store() *Store { return s.store }

func (s *Service) Stats() Stats { return s.router.Stats() }

func (s *Service) Formatter() *Formatter { return s.fmt }

// mirror 把注册表变更镜像到后备存储
func (s *Service) mirror(ev ChangeEvent) {
	if s.loading || s.deps.Assets == nil {
		return
	}
	store := s.deps.Assets
	a := ev.Asset
	switch ev.Kind {
	case AssetAdded:
		s.enqueueMirror(persistJob{name: "save_asset", fn: func(ctx context.Context) error {
			return store.SaveAsset(ctx, domain.Holding{ID: a.ID, Quantity: a.Quantity})
		}})
	case AssetRemoved:
		s.enqueueMirror(persistJob{name: "delete_asset", fn: func(ctx context.Context) error {
			return store.DeleteAsset(ctx, a.ID)
		}})
	}
}

func (s *Service) persistPrice(u domain.PriceUpdate) {
	if u.Price <= 0 {
		return
	}
	repo := s.deps.Repo
	ts := time.Now().UnixMilli()
	s.enqueue(persistJob{name: "upsert_price", fn: func(ctx context.Context) error {
		return repo.UpsertLatestPrice(ctx, u.ID, u.Price, u.Change24h, ts)
	}})
}

// recordStatus 后端支持时记录连接状态迁移
func (s *Service) recordStatus(st FeedStatus) {
	rec, ok := s.deps.Repo.(port.FeedStatusRecorder)
	if !ok {
		return
	}
	ts := st.Since.UnixMilli()
	state := st.State.String()
	s.enqueue(persistJob{name: "feed_status", fn: func(ctx context.Context) error {
		return rec.RecordFeedStatus(ctx, ts, state, st.Degraded, st.LastError)
	}})
}

// enqueueMirror 持仓变更不丢弃，按顺序写入
func (s *Service) enqueueMirror(j persistJob) {
	s.mirrorMu.Lock()
	s.mirrorJobs = append(s.mirrorJobs, j)
	s.mirrorMu.Unlock()
	select {
	case s.mirrorWake <- struct{}{}:
	default:
	}
}

func (s *Service) takeMirror() []persistJob {
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	jobs := s.mirrorJobs
	s.mirrorJobs = nil
	return jobs
}

// enqueue 行情、快照等可丢弃任务，队列满时丢弃
func (s *Service) enqueue(j persistJob) {
	select {
	case s.jobs <- j:
	default:
		log.Debug().Str("job", j.name).Msg("persist queue full, dropped")
	}
}

func (s *Service) persistLoop(ctx context.Context) {
	run := func(ctx context.Context, j persistJob) {
		if err := j.fn(ctx); err != nil {
			log.Error().Err(err).Str("job", j.name).Msg("persist failed")
		}
	}

	snapTicker := time.NewTicker(s.deps.SnapshotEvery)
	defer snapTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			// 退出前尽量写完已排队的任务
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			for _, j := range s.takeMirror() {
				run(flushCtx, j)
			}
			for {
				select {
				case j := <-s.jobs:
					run(flushCtx, j)
				default:
					return
				}
			}
		case <-s.mirrorWake:
			for _, j := range s.takeMirror() {
				run(ctx, j)
			}
		case j := <-s.jobs:
			run(ctx, j)
		case now := <-snapTicker.C:
			s.writeSnapshot(ctx, now)
		}
	}
}

func (s *Service) writeSnapshot(ctx context.Context, now time.Time) {
	snap := s.store.Snapshot()
	if s.deps.Sink != nil {
		_ = s.deps.Sink.WriteSnapshot(now, s.fmt.Render(snap, RenderSnapshot))
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Error().Err(err).Msg("snapshot marshal failed")
		return
	}
	if err := s.deps.Repo.InsertSnapshot(ctx, now.UnixMilli(), snap.TotalValue, string(payload)); err != nil {
		log.Error().Err(err).Msg("snapshot persist failed")
	}
}

func (s *Service) renderLoop(ctx context.Context) {
	updates := s.store.Subscribe()
	_ = s.deps.Sink.WriteLive(s.fmt.Render(s.store.Snapshot(), RenderLive))
	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return
		case <-updates:
			_ = s.deps.Sink.WriteLive(s.fmt.Render(s.store.Snapshot(), RenderLive))
		}
	}
}
