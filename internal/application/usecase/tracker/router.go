package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"xfolio/internal/application/port"
	"xfolio/internal/domain"
)

// ErrRouterStopped 路由循环已退出
var ErrRouterStopped = errors.New("stream router stopped")

type RouterDeps struct {
	Registry *Registry
	Engine   *Engine
	Store    *Store
	Dialer   port.StreamDialer
	Decoder  port.FrameDecoder
	Topics   port.TopicMapper
	Retry    RetryConfig
	// OnUpdate 每条成功应用的行情回调（在路由循环内调用，不能阻塞）
	OnUpdate func(domain.PriceUpdate)
	// OnStatus 状态发生迁移时回调（同样在路由循环内）
	OnStatus func(FeedStatus)
}

// Stats 路由计数
type Stats struct {
	Frames        uint64
	ParseFailures uint64
	Dropped       uint64 // topic 不属于当前持仓
	Stale         uint64 // 来自已被取代的连接代
	Dials         uint64
	Failures      uint64
}

type connEventKind int

const (
	evDialed connEventKind = iota
	evDialFailed
	evFrame
	evClosed
)

// connEvent 由每代连接的 dial/read goroutine 投递给路由循环
type connEvent struct {
	kind connEventKind
	gen  uint64
	conn port.StreamConn
	data []byte
	err  error
}

// Router 行情流路由（StreamRouter）
// Run 所在 goroutine 是唯一的执行上下文：注册表修改、连接生命周期迁移、消息处理都在这里串行
type Router struct {
	deps RouterDeps

	cmds   chan func()
	events chan connEvent
	done   chan struct{}

	running bool
	loopCtx context.Context
	wg      sync.WaitGroup

	state    State
	since    time.Time
	gen      uint64 // 最近一次分配的代号
	liveGen  uint64 // 当前有效代号，0 表示没有活动连接周期
	topics   []string
	byTopic  map[string]string
	conn     port.StreamConn
	cancel   context.CancelFunc
	retry    *time.Timer
	retryC   <-chan time.Time
	attempts int
	lastErr  error

	frames        atomic.Uint64
	parseFailures atomic.Uint64
	dropped       atomic.Uint64
	stale         atomic.Uint64
	dials         atomic.Uint64
	failures      atomic.Uint64
}

func NewRouter(deps RouterDeps) *Router {
	deps.Retry = deps.Retry.withDefaults()
	r := &Router{
		deps:    deps,
		cmds:    make(chan func()),
		events:  make(chan connEvent, 256),
		done:    make(chan struct{}),
		byTopic: map[string]string{},
		state:   StateIdle,
		since:   time.Now(),
	}
	deps.Registry.OnChange(func(ChangeEvent) { r.resync() })
	return r
}

// Do 在路由循环内执行 fn 并等待其完成
// ctx 只约束投递；fn 被循环接收后一定会执行完，此时只等 fn 结束
func (r *Router) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(finished) }:
	case <-r.done:
		return ErrRouterStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

func (r *Router) Stats() Stats {
	return Stats{
		Frames:        r.frames.Load(),
		ParseFailures: r.parseFailures.Load(),
		Dropped:       r.dropped.Load(),
		Stale:         r.stale.Load(),
		Dials:         r.dials.Load(),
		Failures:      r.failures.Load(),
	}
}

// Run 启动路由循环，直到 ctx 结束；退出时释放所有连接与定时器
func (r *Router) Run(ctx context.Context) error {
	r.loopCtx = ctx
	r.running = true
	defer r.shutdown()

	r.resync()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-r.cmds:
			fn()
		case ev := <-r.events:
			r.handle(ev)
		case <-r.retryC:
			r.retryDue()
		}
	}
}

func (r *Router) shutdown() {
	r.teardown()
	r.transition(EventShutdown)
	r.running = false
	close(r.done)
	r.wg.Wait()
	r.drainEvents()
	log.Info().Uint64("gen", r.gen).Msg("stream router stopped")
}

// drainEvents 关闭循环退出后才进入缓冲区的连接
func (r *Router) drainEvents() {
	for {
		select {
		case ev := <-r.events:
			if ev.kind == evDialed && ev.conn != nil {
				_ = ev.conn.Close()
			}
		default:
			return
		}
	}
}

// resync 注册表变更后重新计算 topic 集合，必要时重建连接
func (r *Router) resync() {
	topics, byTopic := r.deriveTopics()
	r.byTopic = byTopic
	if !r.running {
		r.topics = topics
		return
	}

	if len(topics) == 0 {
		r.teardown()
		r.topics = nil
		r.attempts = 0
		r.lastErr = nil
		r.transition(EventTopicsEmpty)
		log.Info().Msg("no assets held, feed idle")
		return
	}

	if sameTopics(topics, r.topics) && (r.state == StateSubscribed || r.state == StateConnecting) {
		return
	}

	r.topics = topics
	r.attempts = 0
	r.transition(EventTopicsChanged)
	r.connect()
}

func (r *Router) deriveTopics() ([]string, map[string]string) {
	ids := r.deps.Registry.IDs()
	topics := make([]string, 0, len(ids))
	byTopic := make(map[string]string, len(ids))
	for _, id := range ids {
		t := r.deps.Topics.Topic(id)
		if t == "" {
			continue
		}
		if _, ok := byTopic[t]; ok {
			continue
		}
		byTopic[t] = id
		topics = append(topics, t)
	}
	return topics, byTopic
}

// connect 开启新一代连接；旧连接先同步关闭
func (r *Router) connect() {
	r.teardown()

	r.gen++
	gen := r.gen
	r.liveGen = gen
	gctx, cancel := context.WithCancel(r.loopCtx)
	r.cancel = cancel
	topics := append([]string(nil), r.topics...)
	r.dials.Add(1)
	r.publishStatus()

	log.Info().Uint64("gen", gen).Strs("topics", topics).Msg("ws connecting")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		conn, err := r.deps.Dialer.Dial(gctx, topics)
		if err != nil {
			r.post(gctx, connEvent{kind: evDialFailed, gen: gen, err: err})
			return
		}
		// socket 生命周期绑定到本代 context：代被取代或进程退出时关闭，ReadMessage 随之返回
		stop := context.AfterFunc(gctx, func() { _ = conn.Close() })
		defer stop()
		if !r.post(gctx, connEvent{kind: evDialed, gen: gen, conn: conn}) {
			_ = conn.Close()
			return
		}

		for {
			b, err := conn.ReadMessage()
			if err != nil {
				r.post(gctx, connEvent{kind: evClosed, gen: gen, err: err})
				return
			}
			if !r.post(gctx, connEvent{kind: evFrame, gen: gen, data: b}) {
				return
			}
		}
	}()
}

func (r *Router) post(ctx context.Context, ev connEvent) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// teardown 释放当前代的所有资源：定时器、goroutine 上下文、socket
func (r *Router) teardown() {
	if r.retry != nil {
		r.retry.Stop()
		r.retry = nil
		r.retryC = nil
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			log.Debug().Err(err).Msg("ws close")
		}
		r.conn = nil
	}
	r.liveGen = 0
}

func (r *Router) handle(ev connEvent) {
	if ev.gen == 0 || ev.gen != r.liveGen {
		if ev.kind == evDialed && ev.conn != nil {
			_ = ev.conn.Close()
		}
		if ev.kind == evFrame {
			r.stale.Add(1)
		}
		log.Debug().Uint64("gen", ev.gen).Uint64("live_gen", r.liveGen).Msg("stale connection event ignored")
		return
	}

	switch ev.kind {
	case evDialed:
		r.conn = ev.conn
		r.attempts = 0
		r.lastErr = nil
		r.transition(EventConnected)
		log.Info().Uint64("gen", ev.gen).Int("topics", len(r.topics)).Msg("ws connected")
	case evDialFailed, evClosed:
		r.fail(ev.err)
	case evFrame:
		r.route(ev.data)
	}
}

// fail 传输层失败：在有限次数内按退避重连，耗尽后进入 Failed
func (r *Router) fail(err error) {
	gen := r.liveGen
	r.teardown()
	r.failures.Add(1)
	r.lastErr = err
	r.attempts++

	if r.attempts > r.deps.Retry.MaxRetries {
		r.transition(EventRetriesExhausted)
		log.Error().Err(err).
			Uint64("gen", gen).
			Int("attempts", r.attempts).
			Msg("ws retries exhausted, feed degraded until next portfolio change")
		return
	}

	delay := r.deps.Retry.Delay(r.attempts)
	r.transition(EventConnLost)
	r.retry = time.NewTimer(delay)
	r.retryC = r.retry.C
	log.Warn().Err(err).
		Uint64("gen", gen).
		Int("attempt", r.attempts).
		Dur("delay", delay).
		Msg("ws disconnected, reconnecting")
}

func (r *Router) retryDue() {
	r.retry = nil
	r.retryC = nil
	r.transition(EventRetryDue)
	r.connect()
}

// route 解复用一帧：topic -> 资产 -> 聚合引擎
func (r *Router) route(b []byte) {
	r.frames.Add(1)

	f, err := r.deps.Decoder.Decode(b)
	if err != nil {
		r.parseFailures.Add(1)
		log.Debug().Err(err).Int("bytes", len(b)).Msg("frame dropped")
		return
	}

	id, ok := r.byTopic[f.Topic]
	if !ok {
		// 资产可能刚被删除
		r.dropped.Add(1)
		return
	}

	u := domain.PriceUpdate{ID: id, Price: f.Price, Change24h: f.Change24h}
	if r.deps.Engine.ApplyUpdate(u) && r.deps.OnUpdate != nil {
		r.deps.OnUpdate(u)
	}
}

func (r *Router) transition(ev Event) {
	to, ok := next(r.state, ev)
	if !ok {
		log.Warn().Str("state", r.state.String()).Str("event", ev.String()).Msg("invalid feed transition ignored")
		return
	}
	changed := to != r.state
	if changed {
		log.Debug().Str("from", r.state.String()).Str("to", to.String()).Str("event", ev.String()).Msg("feed transition")
		r.since = time.Now()
	}
	r.state = to
	st := r.publishStatus()
	if changed && r.deps.OnStatus != nil {
		r.deps.OnStatus(st)
	}
}

func (r *Router) publishStatus() FeedStatus {
	st := FeedStatus{
		State:      r.state,
		Generation: r.liveGen,
		Topics:     len(r.topics),
		Attempts:   r.attempts,
		Degraded:   r.state == StateFailed,
		Since:      r.since,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	if r.deps.Store != nil {
		r.deps.Store.setFeed(st)
	}
	return st
}

func sameTopics(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
