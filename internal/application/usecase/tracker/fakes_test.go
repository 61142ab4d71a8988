package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xfolio/internal/application/port"
	"xfolio/internal/domain"
)

// 帧格式：topic|price|change
func frame(topic string, price, change float64) []byte {
	return []byte(fmt.Sprintf("%s|%g|%g", topic, price, change))
}

type pipeDecoder struct{}

func (pipeDecoder) Decode(b []byte) (port.Frame, error) {
	parts := strings.Split(string(b), "|")
	if len(parts) != 3 || parts[0] == "" {
		return port.Frame{}, port.ErrMalformedFrame
	}
	price, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return port.Frame{}, fmt.Errorf("%w: %v", port.ErrMalformedFrame, err)
	}
	change, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return port.Frame{}, fmt.Errorf("%w: %v", port.ErrMalformedFrame, err)
	}
	return port.Frame{Topic: parts[0], Price: price, Change24h: change}, nil
}

type tickerTopics struct{}

func (tickerTopics) Topic(id string) string { return strings.ToLower(id) + "usdt@ticker" }

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.frames:
		return b, nil
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type dialCall struct {
	topics []string
	conn   *fakeConn // nil 表示拨号失败
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  bool
	calls chan dialCall
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{calls: make(chan dialCall, 64)}
}

func (d *fakeDialer) setFail(v bool) {
	d.mu.Lock()
	d.fail = v
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context, topics []string) (port.StreamConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	fail := d.fail
	d.mu.Unlock()

	topics = append([]string(nil), topics...)
	if fail {
		d.calls <- dialCall{topics: topics}
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	d.calls <- dialCall{topics: topics, conn: c}
	return c, nil
}

// next 等待下一次拨号
func (d *fakeDialer) next(t *testing.T) dialCall {
	t.Helper()
	select {
	case c := <-d.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return dialCall{}
	}
}

// none 断言一段时间内没有新的拨号
func (d *fakeDialer) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case c := <-d.calls:
		t.Fatalf("unexpected dial with topics %v", c.topics)
	case <-time.After(wait):
	}
}

type fakeAssets struct {
	mu      sync.Mutex
	initial []domain.Holding
	saved   []domain.Holding
	deleted []string
	loadErr error
}

func (f *fakeAssets) LoadAssets(context.Context) ([]domain.Holding, error) {
	return f.initial, f.loadErr
}

func (f *fakeAssets) SaveAsset(_ context.Context, h domain.Holding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, h)
	return nil
}

func (f *fakeAssets) DeleteAsset(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAssets) snapshot() ([]domain.Holding, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Holding(nil), f.saved...), append([]string(nil), f.deleted...)
}

type fakeRepo struct {
	mu        sync.Mutex
	prices    map[string]float64
	snapshots []string
	statuses  []string
}

func (f *fakeRepo) UpsertLatestPrice(_ context.Context, id string, price, _ float64, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prices == nil {
		f.prices = map[string]float64{}
	}
	f.prices[id] = price
	return nil
}

func (f *fakeRepo) InsertSnapshot(_ context.Context, _ int64, _ float64, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, payload)
	return nil
}

func (f *fakeRepo) RecordFeedStatus(_ context.Context, _ int64, state string, _ bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, state)
	return nil
}

func (f *fakeRepo) price(id string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prices[id]
}

func (f *fakeRepo) counts() (snapshots int, statuses []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots), append([]string(nil), f.statuses...)
}

type harness struct {
	svc    *Service
	dialer *fakeDialer
	cancel context.CancelFunc
	done   chan struct{} // Run 返回后关闭
	once   sync.Once
}

// startService 加载 seed 并在后台运行服务，测试结束时停止
func startService(t *testing.T, deps ServiceDeps) *harness {
	t.Helper()
	dialer := newFakeDialer()
	deps.Dialer = dialer
	deps.Decoder = pipeDecoder{}
	deps.Topics = tickerTopics{}

	svc := NewService(deps)
	require.NoError(t, svc.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{svc: svc, dialer: dialer, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		_ = svc.Run(ctx)
	}()

	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
		}
	})
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.svc.Store().Feed().State == want
	}, 2*time.Second, 5*time.Millisecond, "feed state never reached %s (now %s)", want, h.svc.Store().Feed().State)
}

func (h *harness) waitPrice(t *testing.T, id string, want float64) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, a := range h.svc.Snapshot().Assets {
			if a.ID == id {
				return a.CurrentPrice == want
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "price of %s never reached %v", id, want)
}
