package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xfolio/internal/application/port"
	"xfolio/internal/domain"
)

// gateDialer 拨号阻塞到 release 关闭后才返回连接，且忽略 ctx
type gateDialer struct {
	started chan struct{}
	release chan struct{}
	conns   chan *fakeConn
}

func newGateDialer() *gateDialer {
	return &gateDialer{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		conns:   make(chan *fakeConn, 1),
	}
}

func (d *gateDialer) Dial(context.Context, []string) (port.StreamConn, error) {
	d.started <- struct{}{}
	<-d.release
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func waitRun(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRouterShutdownClosesInFlightDial(t *testing.T) {
	// 投递与 ctx 取消之间是随机选择，多跑几轮
	for i := 0; i < 20; i++ {
		d := newGateDialer()
		svc := NewService(ServiceDeps{
			Dialer:  d,
			Decoder: pipeDecoder{},
			Topics:  tickerTopics{},
			Retry:   fastRetry,
			Seed:    []domain.Holding{{ID: "BTC", Quantity: 1}},
		})
		require.NoError(t, svc.Load(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = svc.Run(ctx)
		}()

		select {
		case <-d.started:
		case <-time.After(2 * time.Second):
			t.Fatal("dial never started")
		}
		cancel()
		time.Sleep(10 * time.Millisecond)
		close(d.release)

		waitRun(t, done)
		conn := <-d.conns
		assert.True(t, conn.isClosed(), "run %d: connection dialed during shutdown left open", i)
	}
}

func TestRouterShutdownClosesLiveConnection(t *testing.T) {
	h := startService(t, ServiceDeps{Retry: fastRetry, Seed: []domain.Holding{{ID: "BTC", Quantity: 1}}})

	call := h.dialer.next(t)
	h.waitState(t, StateSubscribed)
	call.conn.frames <- frame("btcusdt@ticker", 10, 0)
	h.waitPrice(t, "BTC", 10)

	h.cancel()
	waitRun(t, h.done)
	assert.True(t, call.conn.isClosed())
}

func TestRouterShutdownDuringBackoff(t *testing.T) {
	h := startService(t, ServiceDeps{
		Retry: RetryConfig{MaxRetries: 3, InitialDelay: time.Hour, MaxDelay: time.Hour},
		Seed:  []domain.Holding{{ID: "BTC", Quantity: 1}},
	})

	call := h.dialer.next(t)
	h.waitState(t, StateSubscribed)
	_ = call.conn.Close()
	h.waitState(t, StateReconnecting)

	h.cancel()
	waitRun(t, h.done)
	h.dialer.none(t, 20*time.Millisecond)
}

func TestRouterDoCompletesWhenCtxCanceledAfterHandoff(t *testing.T) {
	h := startService(t, ServiceDeps{Retry: fastRetry})

	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ran := false
		err := h.svc.router.Do(ctx, func() {
			cancel()
			ran = true
		})
		require.NoError(t, err, "run %d", i)
		assert.True(t, ran)
	}
}
