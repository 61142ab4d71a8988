package binance

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"xfolio/internal/application/port"
	"xfolio/internal/infrastructure/exchange"
)

const dialTimeout = 10 * time.Second

// StreamDialer Binance 组合流（combined stream）拨号器
// 所有 topic 拼接进同一个 URL：/stream?streams=btcusdt@ticker/ethusdt@ticker
type StreamDialer struct {
	wsURL  string // e.g. wss://stream.binance.com:9443
	dialer *websocket.Dialer
}

// NewStreamDialer 创建拨号器
func NewStreamDialer(wsURL string) *StreamDialer {
	return &StreamDialer{
		wsURL: strings.TrimSpace(wsURL),
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: dialTimeout,
		},
	}
}

func (d *StreamDialer) Dial(ctx context.Context, topics []string) (port.StreamConn, error) {
	wsURL, err := buildCombinedURL(d.wsURL, topics)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := d.dialer.DialContext(cctx, wsURL, nil)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("url", wsURL).Msg("ws dialed")
	return exchange.NewKeepaliveConn(conn, exchange.KeepaliveOptions{}), nil
}

func buildCombinedURL(base string, topics []string) (string, error) {
	if base == "" {
		return "", errors.New("binance ws_url empty")
	}
	if len(topics) == 0 {
		return "", errors.New("topics empty")
	}

	streams := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		streams = append(streams, t)
	}
	if len(streams) == 0 {
		return "", errors.New("no valid topics")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

var _ port.StreamDialer = (*StreamDialer)(nil)
