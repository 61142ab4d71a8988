package binance

import (
	"xfolio/internal/infrastructure/exchange"
)

// Fields 行情帧字段路径
type Fields = exchange.FrameFields

// DefaultFields Binance 组合流 24hr ticker:
// {"stream":"btcusdt@ticker","data":{"c":"65000.01","P":"1.23",...}}
// P 已经是百分比
var DefaultFields = Fields{
	Stream:      "$.stream",
	Price:       "$.data.c",
	Change:      "$.data.P",
	ChangeScale: 1,
}

// NewTickerDecoder 空字段使用 DefaultFields
func NewTickerDecoder(f Fields) (*exchange.FrameDecoder, error) {
	return exchange.NewFrameDecoder(f, DefaultFields)
}
