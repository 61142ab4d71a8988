package port

import (
	"context"
	"errors"
)

// ErrMalformedFrame 行情帧无法解析（缺字段或非数字），调用方应丢弃并计数
var ErrMalformedFrame = errors.New("malformed frame")

// Frame 解码后的行情帧
type Frame struct {
	Topic     string  // 流标签，回显订阅 topic, e.g. "btcusdt@ticker"
	Price     float64 // 最新价
	Change24h float64 // 24h 涨跌幅（百分比）
}

// FrameDecoder 将原始帧解码为 Frame
// 字段位置由各交易所实现配置，引擎不假设具体字段名
type FrameDecoder interface {
	Decode(b []byte) (Frame, error)
}

// TopicMapper 资产 ID -> 订阅 topic
type TopicMapper interface {
	Topic(assetID string) string
}

// StreamConn 一个已建立的多路复用行情连接
// ReadMessage 阻塞直到收到一帧或连接出错；Close 之后 ReadMessage 必须返回错误
type StreamConn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// StreamDialer 根据 topic 集合建立一条订阅连接
type StreamDialer interface {
	Dial(ctx context.Context, topics []string) (StreamConn, error)
}
