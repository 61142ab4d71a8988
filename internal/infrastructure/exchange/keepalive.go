package exchange

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 25 * time.Second
	writeTimeout        = 5 * time.Second
)

// KeepaliveOptions 心跳与过滤配置
type KeepaliveOptions struct {
	ReadTimeout  time.Duration
	PingInterval time.Duration
	// Ping 自定义心跳（应用层 ping）；nil 时发送 websocket ping 控制帧
	Ping func(c *websocket.Conn) error
	// Skip 返回 true 的消息不交给上层，例如订阅回执、应用层 pong
	Skip func(b []byte) bool
}

// KeepaliveConn 带心跳和读超时的连接
// 收到任意帧或 pong 时续期读超时；Close 可重复调用
type KeepaliveConn struct {
	conn *websocket.Conn
	opts KeepaliveOptions
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewKeepaliveConn(conn *websocket.Conn, opts KeepaliveOptions) *KeepaliveConn {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	c := &KeepaliveConn{conn: conn, opts: opts, stop: make(chan struct{})}

	_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})

	c.wg.Add(1)
	go c.pingLoop()
	return c
}

func (c *KeepaliveConn) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			var err error
			if c.opts.Ping != nil {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err = c.opts.Ping(c.conn)
			} else {
				err = c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
			}
			if err != nil {
				log.Debug().Err(err).Msg("ws ping failed")
			}
		}
	}
}

func (c *KeepaliveConn) ReadMessage() ([]byte, error) {
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		if c.opts.Skip != nil && c.opts.Skip(b) {
			continue
		}
		return b, nil
	}
}

// Close 停止心跳，发送 close 帧并关闭 socket
func (c *KeepaliveConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
