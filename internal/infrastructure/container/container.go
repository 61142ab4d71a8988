package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"xfolio/internal/application/port"
	"xfolio/internal/infrastructure/config"
	"xfolio/internal/infrastructure/storage/composite"
	pgrepo "xfolio/internal/infrastructure/storage/postgres"
	redisrepo "xfolio/internal/infrastructure/storage/redis"
	sqliterepo "xfolio/internal/infrastructure/storage/sqlite"
)

// Container 包含所有存储依赖
type Container struct {
	cfg         *config.Config
	redisClient *redis.Client
	sqliteRepo  *sqliterepo.Repo
	pgRepo      *pgrepo.Repo
	redisRepo   *redisrepo.Repo
	closeOnce   sync.Once
	closerChain []func() error
}

// New 创建新的容器实例；未启用任何存储时引擎以纯内存方式运行
func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}

	if err := c.initStorage(); err != nil {
		// 清理已初始化的资源
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// initStorage 初始化存储层（SQLite、Postgres、Redis）
// 顺序决定持仓加载的主后端：SQLite > Postgres > Redis
func (c *Container) initStorage() error {
	if c.cfg.Storage.SQLite.Enabled {
		if err := c.initSQLite(); err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
	}

	if c.cfg.Storage.Postgres.Enabled {
		if err := c.initPostgres(); err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
	}

	if c.cfg.Storage.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
	}
	return nil
}

// initRedis 初始化 Redis 连接
func (c *Container) initRedis() error {
	rc := c.cfg.Storage.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	ttl := time.Duration(rc.TTLSeconds) * time.Second
	c.redisRepo = redisrepo.New(rdb, rc.Prefix, ttl, rc.StatusStream, rc.SnapshotTopic)

	// 注册关闭回调
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", rc.Addr).
		Int("db", rc.DB).
		Str("prefix", rc.Prefix).
		Msg("redis initialized")
	return nil
}

// initSQLite 初始化 SQLite 数据库
func (c *Container) initSQLite() error {
	repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}
	c.sqliteRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", c.cfg.Storage.SQLite.Path).
		Msg("sqlite initialized")
	return nil
}

// initPostgres 初始化 Postgres 连接并建表
func (c *Container) initPostgres() error {
	repo, err := pgrepo.New(c.cfg.Storage.Postgres.DSN)
	if err != nil {
		return err
	}
	c.pgRepo = repo

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")
	return nil
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// RedisClient 获取 Redis 客户端
func (c *Container) RedisClient() *redis.Client {
	return c.redisClient
}

// SQLiteRepo 获取 SQLite 仓储
func (c *Container) SQLiteRepo() *sqliterepo.Repo {
	return c.sqliteRepo
}

// PostgresRepo 获取 Postgres 仓储
func (c *Container) PostgresRepo() *pgrepo.Repo {
	return c.pgRepo
}

// RedisRepo 获取 Redis 仓储
func (c *Container) RedisRepo() *redisrepo.Repo {
	return c.redisRepo
}

// Repository 所有已启用后端的扇出仓储；一个都没有时返回 nil
func (c *Container) Repository() port.Repository {
	var repos []port.Repository
	if c.sqliteRepo != nil {
		repos = append(repos, c.sqliteRepo)
	}
	if c.pgRepo != nil {
		repos = append(repos, c.pgRepo)
	}
	if c.redisRepo != nil {
		repos = append(repos, c.redisRepo)
	}
	if len(repos) == 0 {
		return nil
	}
	return composite.New(repos...)
}

// Assets 持仓后备存储；一个都没有时返回 nil
func (c *Container) Assets() port.AssetStore {
	var stores []port.AssetStore
	if c.sqliteRepo != nil {
		stores = append(stores, c.sqliteRepo)
	}
	if c.pgRepo != nil {
		stores = append(stores, c.pgRepo)
	}
	if c.redisRepo != nil {
		stores = append(stores, c.redisRepo)
	}
	if len(stores) == 0 {
		return nil
	}
	return composite.NewAssets(stores...)
}

// Close 关闭所有资源（按后进先出顺序）
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
