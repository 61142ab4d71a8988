package pricefeed

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"xfolio/internal/application/port"
)

// Options 构造行情源所需的配置
type Options struct {
	WsURL      string
	Quote      string // 计价货币, e.g. USDT
	StreamKind string // 流类型, e.g. ticker
	// JSONPath 字段位置，空值使用交易所默认
	StreamField string
	PriceField  string
	ChangeField string
	// ChangeScale 涨跌幅换算为百分比的倍数，0 使用交易所默认
	ChangeScale float64
}

// Feed 行情源三件套：连接、解码、topic 映射
type Feed struct {
	Dialer  port.StreamDialer
	Decoder port.FrameDecoder
	Topics  port.TopicMapper
}

// Factory 根据配置构造行情源
type Factory func(opts Options) (Feed, error)

// registry maps provider names to their feed factories
var registry = make(map[string]Factory)

// Register 注册行情源工厂（由各交易所包的 init() 调用）
func Register(provider string, factory Factory) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if factory == nil {
		log.Warn().Str("provider", provider).Msg("invalid price feed factory")
		return
	}
	if _, exists := registry[provider]; exists {
		log.Warn().Str("provider", provider).Msg("price feed factory already registered, overwriting")
	}
	registry[provider] = factory
	log.Debug().Str("provider", provider).Msg("price feed factory registered")
}

// Get 获取已注册的工厂
func Get(provider string) (Factory, bool) {
	factory, ok := registry[strings.ToLower(strings.TrimSpace(provider))]
	return factory, ok
}

// New 按名称构造行情源
func New(provider string, opts Options) (Feed, error) {
	factory, ok := Get(provider)
	if !ok {
		return Feed{}, fmt.Errorf("price feed provider not registered: %s (known: %v)", provider, Providers())
	}
	return factory(opts)
}

// Providers 已注册的行情源名称
func Providers() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
