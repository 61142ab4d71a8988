package binance

import (
	"xfolio/internal/infrastructure/exchange"
	"xfolio/internal/infrastructure/pricefeed"
)

const ProviderName = "binance"

// init() automatically registers the Binance combined-stream feed
// 这样 main 只需要 import 本包，不需要硬编码
func init() {
	pricefeed.Register(ProviderName, NewFeed)
}

// NewFeed 构造 Binance 行情源
func NewFeed(opts pricefeed.Options) (pricefeed.Feed, error) {
	dec, err := NewTickerDecoder(Fields{
		Stream:      opts.StreamField,
		Price:       opts.PriceField,
		Change:      opts.ChangeField,
		ChangeScale: opts.ChangeScale,
	})
	if err != nil {
		return pricefeed.Feed{}, err
	}

	quote := opts.Quote
	if quote == "" {
		quote = "USDT"
	}
	kind := opts.StreamKind
	if kind == "" {
		kind = "ticker"
	}

	return pricefeed.Feed{
		Dialer:  NewStreamDialer(opts.WsURL),
		Decoder: dec,
		Topics:  exchange.NewStreamTopics(quote, kind),
	}, nil
}
