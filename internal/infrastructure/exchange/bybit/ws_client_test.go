package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xfolio/internal/infrastructure/pricefeed"
)

func TestStreamDialerSubscribesAndSkipsControlFrames(t *testing.T) {
	subs := make(chan subReq, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		var req subReq
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		subs <- req
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"success":true,"ret_msg":"","op":"subscribe","conn_id":"x"}`))
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","lastPrice":"65000.5","price24hPcnt":"0.0123"}}`))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	feed, err := pricefeed.New(ProviderName, pricefeed.Options{WsURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, err)

	topic := feed.Topics.Topic("btc")
	assert.Equal(t, "tickers.BTCUSDT", topic)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := feed.Dialer.Dial(ctx, []string{topic})
	require.NoError(t, err)
	defer conn.Close()

	select {
	case req := <-subs:
		assert.Equal(t, "subscribe", req.Op)
		assert.Equal(t, []string{"tickers.BTCUSDT"}, req.Args)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request received")
	}

	b, err := conn.ReadMessage()
	require.NoError(t, err)
	f, err := feed.Decoder.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "tickers.BTCUSDT", f.Topic)
	assert.Equal(t, 65000.5, f.Price)
	assert.InDelta(t, 1.23, f.Change24h, 1e-9)
}

func TestStreamDialerChunksSubscriptions(t *testing.T) {
	subs := make(chan subReq, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			var req subReq
			if err := c.ReadJSON(&req); err != nil {
				return
			}
			subs <- req
		}
	}))
	defer srv.Close()

	topics := make([]string, 0, 12)
	tm := NewTopics("USDT", "")
	for _, coin := range []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"} {
		topics = append(topics, tm.Topic(coin))
	}

	d := NewStreamDialer("ws" + strings.TrimPrefix(srv.URL, "http"))
	conn, err := d.Dial(context.Background(), topics)
	require.NoError(t, err)
	defer conn.Close()

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case req := <-subs:
			got = append(got, req.Args...)
			assert.LessOrEqual(t, len(req.Args), maxArgsPerSub)
		case <-time.After(2 * time.Second):
			t.Fatal("missing subscribe request")
		}
	}
	assert.Equal(t, topics, got)
}

func TestStreamDialerRejectsEmptyTopics(t *testing.T) {
	_, err := NewStreamDialer("").Dial(context.Background(), []string{" "})
	assert.Error(t, err)
}

func TestSkipControl(t *testing.T) {
	assert.True(t, skipControl([]byte(`{"op":"pong","args":["1"]}`)))
	assert.True(t, skipControl([]byte(`{"success":false,"ret_msg":"invalid topic","op":"subscribe"}`)))
	assert.False(t, skipControl([]byte(`{"topic":"tickers.BTCUSDT","data":{}}`)))
	assert.False(t, skipControl([]byte(`not json`)))
}
