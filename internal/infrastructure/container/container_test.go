package container

import (
	"context"
	"path/filepath"
	"testing"

	"xfolio/internal/domain"
	"xfolio/internal/infrastructure/config"
)

func TestContainerWithoutStorage(t *testing.T) {
	c, err := New(config.Default())
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	defer c.Close()

	if c.Repository() != nil {
		t.Errorf("expected nil Repository without storage")
	}
	if c.Assets() != nil {
		t.Errorf("expected nil Assets without storage")
	}
}

func TestContainerWithSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLite.Enabled = true
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "test_container.db")

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	defer c.Close()

	if c.SQLiteRepo() == nil {
		t.Fatalf("expected SQLiteRepo, got nil")
	}

	ctx := context.Background()
	assets := c.Assets()
	if err := assets.SaveAsset(ctx, domain.Holding{ID: "BTC", Quantity: 1.5}); err != nil {
		t.Fatalf("SaveAsset failed: %v", err)
	}
	got, err := assets.LoadAssets(ctx)
	if err != nil {
		t.Fatalf("LoadAssets failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "BTC" {
		t.Errorf("unexpected assets %+v", got)
	}

	if err := c.Repository().UpsertLatestPrice(ctx, "BTC", 45000, 1, 1234567890); err != nil {
		t.Fatalf("UpsertLatestPrice failed: %v", err)
	}
}

func TestContainerCloseIsIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.SQLite.Enabled = true
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "close.db")

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
