package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"xfolio/internal/application/port"
	"xfolio/internal/infrastructure/exchange"
)

const (
	DefaultWsURL = "wss://stream.bybit.com/v5/public/spot"

	dialTimeout = 10 * time.Second
	// Bybit 建议每 20s 发送一次应用层 ping
	pingInterval = 20 * time.Second
	// 单个 subscribe 请求最多 10 个 topic（spot）
	maxArgsPerSub = 10
)

type subReq struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// controlMsg 订阅回执 / pong
type controlMsg struct {
	Op      string `json:"op"`
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
}

// StreamDialer Bybit v5 公共行情拨号器
// 先建立连接，再通过 subscribe 请求订阅 topic（tickers.BTCUSDT）
type StreamDialer struct {
	wsURL  string
	dialer *websocket.Dialer
}

func NewStreamDialer(wsURL string) *StreamDialer {
	wsURL = strings.TrimSpace(wsURL)
	if wsURL == "" {
		wsURL = DefaultWsURL
	}
	return &StreamDialer{
		wsURL: wsURL,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: dialTimeout,
		},
	}
}

func (d *StreamDialer) Dial(ctx context.Context, topics []string) (port.StreamConn, error) {
	args := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			args = append(args, t)
		}
	}
	if len(args) == 0 {
		return nil, errors.New("no valid topics")
	}

	cctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := d.dialer.DialContext(cctx, d.wsURL, nil)
	if err != nil {
		return nil, err
	}

	// subscribe
	_ = conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	for start := 0; start < len(args); start += maxArgsPerSub {
		end := min(start+maxArgsPerSub, len(args))
		if err := conn.WriteJSON(subReq{Op: "subscribe", Args: args[start:end]}); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	_ = conn.SetWriteDeadline(time.Time{})

	log.Debug().Str("url", d.wsURL).Strs("topics", args).Msg("ws dialed & subscribed")
	return exchange.NewKeepaliveConn(conn, exchange.KeepaliveOptions{
		PingInterval: pingInterval,
		Ping: func(c *websocket.Conn) error {
			return c.WriteMessage(websocket.TextMessage, []byte(`{"op":"ping"}`))
		},
		Skip: skipControl,
	}), nil
}

// skipControl 过滤订阅回执和 pong，失败的回执记录日志
func skipControl(b []byte) bool {
	var msg controlMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return false
	}
	if msg.Success != nil && !*msg.Success {
		log.Error().Str("op", msg.Op).Str("ret_msg", msg.RetMsg).Msg("bybit subscribe not success")
	}
	return msg.Op != "" || msg.Success != nil
}

// Topics 币种 -> tickers.BTCUSDT
type Topics struct {
	conv *exchange.CommonSymbolConverter
	kind string
}

func NewTopics(quote, kind string) *Topics {
	if kind = strings.TrimSpace(kind); kind == "" {
		kind = "tickers"
	}
	return &Topics{conv: exchange.NewCommonSymbolConverter(quote), kind: kind}
}

func (t *Topics) Topic(coin string) string {
	sym := t.conv.Coin2Symbol(coin)
	if sym == "" {
		return ""
	}
	return t.kind + "." + sym
}

var (
	_ port.StreamDialer = (*StreamDialer)(nil)
	_ port.TopicMapper  = (*Topics)(nil)
)
