package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"xfolio/internal/domain"
)

type Config struct {
	App struct {
		LogLevel         string `toml:"log_level"`
		SnapshotEveryMin int    `toml:"snapshot_every_min"`
	} `toml:"app"`

	Portfolio struct {
		Quote  string        `toml:"quote"`
		Assets []AssetConfig `toml:"assets"` // 后备存储为空时的初始持仓
	} `toml:"portfolio"`

	Feed FeedConfig `toml:"feed"`

	Storage struct {
		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`

		Redis struct {
			Enabled       bool   `toml:"enabled"`
			Addr          string `toml:"addr"`
			Password      string `toml:"password"`
			DB            int    `toml:"db"`
			Prefix        string `toml:"prefix"`
			TTLSeconds    int    `toml:"ttl_seconds"`
			StatusStream  string `toml:"status_stream"`
			SnapshotTopic string `toml:"snapshot_channel"`
		} `toml:"redis"`
	} `toml:"storage"`
}

type AssetConfig struct {
	ID       string  `toml:"id"`
	Quantity float64 `toml:"quantity"`
}

type FeedConfig struct {
	Provider   string `toml:"provider"`
	WsURL      string `toml:"ws_url"`
	RestURL    string `toml:"rest_url"`
	StreamKind string `toml:"stream_kind"`

	// 行情帧字段的 JSONPath，换交易所时只改配置
	StreamField string `toml:"stream_field"`
	PriceField  string `toml:"price_field"`
	ChangeField string `toml:"change_field"`
	// 涨跌幅换算为百分比的倍数，0 使用交易所默认
	ChangeScale float64 `toml:"change_scale"`

	Retry struct {
		MaxRetries     int `toml:"max_retries"`
		InitialDelayMs int `toml:"initial_delay_ms"`
		MaxDelayMs     int `toml:"max_delay_ms"`
	} `toml:"retry"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 不读文件时的默认配置
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.LogLevel) == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.SnapshotEveryMin <= 0 {
		cfg.App.SnapshotEveryMin = 5
	}
	if strings.TrimSpace(cfg.Portfolio.Quote) == "" {
		cfg.Portfolio.Quote = "USDT"
	}
	cfg.Portfolio.Quote = strings.ToUpper(strings.TrimSpace(cfg.Portfolio.Quote))

	cfg.Feed.Provider = strings.ToLower(strings.TrimSpace(cfg.Feed.Provider))
	if cfg.Feed.Provider == "" {
		cfg.Feed.Provider = "binance"
	}
	// 其他交易所的地址与流类型由各自的行情源补默认值
	if cfg.Feed.Provider == "binance" {
		if cfg.Feed.WsURL == "" {
			cfg.Feed.WsURL = "wss://stream.binance.com:9443"
		}
		if cfg.Feed.StreamKind == "" {
			cfg.Feed.StreamKind = "ticker"
		}
	}
	if cfg.Feed.RestURL == "" {
		cfg.Feed.RestURL = "https://api.binance.com"
	}
	if cfg.Feed.Retry.MaxRetries == 0 {
		cfg.Feed.Retry.MaxRetries = 5
	}
	if cfg.Feed.Retry.InitialDelayMs <= 0 {
		cfg.Feed.Retry.InitialDelayMs = 500
	}
	if cfg.Feed.Retry.MaxDelayMs <= 0 {
		cfg.Feed.Retry.MaxDelayMs = 10_000
	}

	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/xfolio.db"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "localhost:6379"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "xfolio"
	}
}

func validate(cfg *Config) error {
	if cfg.Feed.ChangeScale < 0 {
		return errors.New("feed.change_scale must be >= 0")
	}
	if cfg.Feed.Retry.MaxRetries < 0 {
		return errors.New("feed.retry.max_retries must be >= 0")
	}
	if cfg.Feed.Retry.MaxDelayMs < cfg.Feed.Retry.InitialDelayMs {
		return errors.New("feed.retry.max_delay_ms must be >= initial_delay_ms")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}

	seen := map[string]struct{}{}
	for _, a := range cfg.Portfolio.Assets {
		id := domain.NormalizeID(a.ID)
		if id == "" {
			return errors.New("portfolio.assets: empty id")
		}
		if a.Quantity <= 0 {
			return fmt.Errorf("portfolio.assets: %s quantity must be positive", id)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("portfolio.assets: duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Seed 配置中的初始持仓
func (c *Config) Seed() []domain.Holding {
	out := make([]domain.Holding, 0, len(c.Portfolio.Assets))
	for _, a := range c.Portfolio.Assets {
		out = append(out, domain.Holding{ID: domain.NormalizeID(a.ID), Quantity: a.Quantity})
	}
	return out
}

func (c *Config) SnapshotEvery() time.Duration {
	return time.Duration(c.App.SnapshotEveryMin) * time.Minute
}

func (f FeedConfig) RetryInitialDelay() time.Duration {
	return time.Duration(f.Retry.InitialDelayMs) * time.Millisecond
}

func (f FeedConfig) RetryMaxDelay() time.Duration {
	return time.Duration(f.Retry.MaxDelayMs) * time.Millisecond
}
