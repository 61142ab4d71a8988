package bybit

import (
	"xfolio/internal/infrastructure/exchange"
	"xfolio/internal/infrastructure/pricefeed"
)

const ProviderName = "bybit"

// DefaultFields Bybit v5 spot tickers:
// {"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","lastPrice":"65000.1","price24hPcnt":"0.0123"}}
// price24hPcnt 是小数，需要乘 100
var DefaultFields = exchange.FrameFields{
	Stream:      "$.topic",
	Price:       "$.data.lastPrice",
	Change:      "$.data.price24hPcnt",
	ChangeScale: 100,
}

// init() automatically registers the Bybit ticker feed
func init() {
	pricefeed.Register(ProviderName, NewFeed)
}

func NewFeed(opts pricefeed.Options) (pricefeed.Feed, error) {
	dec, err := exchange.NewFrameDecoder(exchange.FrameFields{
		Stream:      opts.StreamField,
		Price:       opts.PriceField,
		Change:      opts.ChangeField,
		ChangeScale: opts.ChangeScale,
	}, DefaultFields)
	if err != nil {
		return pricefeed.Feed{}, err
	}

	quote := opts.Quote
	if quote == "" {
		quote = "USDT"
	}

	return pricefeed.Feed{
		Dialer:  NewStreamDialer(opts.WsURL),
		Decoder: dec,
		Topics:  NewTopics(quote, opts.StreamKind),
	}, nil
}
