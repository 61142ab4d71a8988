package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"xfolio/internal/application/usecase/tracker"
	"xfolio/internal/infrastructure/config"
	"xfolio/internal/infrastructure/container"
	"xfolio/internal/infrastructure/exchange/binance"
	_ "xfolio/internal/infrastructure/exchange/bybit"
	"xfolio/internal/infrastructure/logger"
	"xfolio/internal/infrastructure/pricefeed"
	"xfolio/internal/interfaces/console"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	listCatalog := flag.Bool("catalog", false, "print assets tradable against the quote currency and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		logger.Setup("info")
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 目录只走 Binance REST
	var catalog console.CatalogFunc
	if cfg.Feed.Provider == binance.ProviderName {
		catalogClient := binance.NewCatalogClient(cfg.Feed.RestURL)
		catalog = func(ctx context.Context) ([]string, error) {
			return catalogClient.QuoteAssets(ctx, cfg.Portfolio.Quote)
		}
	}

	if *listCatalog {
		if catalog == nil {
			log.Fatal().Str("provider", cfg.Feed.Provider).Msg("catalog not supported for provider")
		}
		coins, err := catalog(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("fetch catalog failed")
		}
		fmt.Println(strings.Join(coins, "\n"))
		return
	}

	feed, err := pricefeed.New(cfg.Feed.Provider, pricefeed.Options{
		WsURL:       cfg.Feed.WsURL,
		Quote:       cfg.Portfolio.Quote,
		StreamKind:  cfg.Feed.StreamKind,
		StreamField: cfg.Feed.StreamField,
		PriceField:  cfg.Feed.PriceField,
		ChangeField: cfg.Feed.ChangeField,
		ChangeScale: cfg.Feed.ChangeScale,
	})
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Feed.Provider).Msg("price feed init failed")
	}

	c, err := container.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}
	defer c.Close()

	sink := console.NewSink()

	svc := tracker.NewService(tracker.ServiceDeps{
		Dialer:  feed.Dialer,
		Decoder: feed.Decoder,
		Topics:  feed.Topics,
		Retry: tracker.RetryConfig{
			MaxRetries:   cfg.Feed.Retry.MaxRetries,
			InitialDelay: cfg.Feed.RetryInitialDelay(),
			MaxDelay:     cfg.Feed.RetryMaxDelay(),
		},
		Assets:        c.Assets(),
		Seed:          cfg.Seed(),
		Repo:          c.Repository(),
		Sink:          sink,
		SnapshotEvery: cfg.SnapshotEvery(),
	})

	if err := svc.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("load portfolio failed")
	}

	log.Info().
		Str("config", *configPath).
		Str("provider", cfg.Feed.Provider).
		Str("quote", cfg.Portfolio.Quote).
		Int("assets", len(svc.Snapshot().Assets)).
		Int("snapshot_every_min", cfg.App.SnapshotEveryMin).
		Msg("xfolio started")

	cmds := console.NewCommands(svc, catalog, sink)
	go func() {
		if err := cmds.Run(ctx, os.Stdin); err != nil {
			log.Warn().Err(err).Msg("command input closed")
		}
	}()

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("portfolio service exited")
	}
}
