package exchange

import (
	"strings"
)

// CommonSymbolConverter 通用符号转换器（币种 + 计价货币后缀）
type CommonSymbolConverter struct {
	suffix string
}

// NewCommonSymbolConverter 创建通用符号转换器
func NewCommonSymbolConverter(suffix string) *CommonSymbolConverter {
	return &CommonSymbolConverter{suffix: strings.ToUpper(strings.TrimSpace(suffix))}
}

// Symbol2Coin 将交易对转换为币种，不以后缀结尾时返回空
// 例: BTCUSDT -> BTC
func (c *CommonSymbolConverter) Symbol2Coin(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" || !strings.HasSuffix(sym, c.suffix) {
		return ""
	}
	return strings.TrimSuffix(sym, c.suffix)
}

// Coin2Symbol 将币种转换为交易对
// 例: BTC -> BTCUSDT
func (c *CommonSymbolConverter) Coin2Symbol(coin string) string {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if coin == "" {
		return ""
	}
	return coin + c.suffix
}

// StreamTopics 币种 -> 订阅 topic
// topic = lower(币种 + 计价货币) + "@" + 流类型, e.g. BTC -> btcusdt@ticker
type StreamTopics struct {
	conv *CommonSymbolConverter
	kind string
}

// NewStreamTopics 创建 topic 映射
func NewStreamTopics(quote, streamKind string) *StreamTopics {
	return &StreamTopics{
		conv: NewCommonSymbolConverter(quote),
		kind: strings.TrimSpace(streamKind),
	}
}

// Topic 返回资产对应的订阅 topic，空 ID 返回空串
func (t *StreamTopics) Topic(coin string) string {
	sym := t.conv.Coin2Symbol(coin)
	if sym == "" {
		return ""
	}
	return strings.ToLower(sym) + "@" + t.kind
}
