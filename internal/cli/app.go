package cli

import (
	"database/sql"
	"fmt"
	"time"

	"codepilot/internal/config"
	"codepilot/internal/logger"
	"codepilot/internal/redis"
	"codepilot/internal/service/workspace"
	"codepilot/internal/storage"
)

// app holds the resources every subcommand shares.
type app struct {
	cfg       *config.Config
	dbType    string
	db        *sql.DB
	cache     *redis.Client
	workspace *workspace.Service
}

// openApp loads configuration, opens and migrates the database and connects
// to redis when enabled.
func openApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Logging.Level)

	dbType, _ := cfg.Database()
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, dbType); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a := &app{cfg: cfg, dbType: dbType, db: db}
	if cfg.Redis.Enabled {
		a.cache, err = redis.NewRedisClient(cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create redis client: %w", err)
		}
	}
	a.workspace = workspace.NewService(db,
		workspace.WithStatsCache(a.cache, time.Duration(cfg.BasicConfig.StatsCacheTTL)*time.Second),
	)
	logger.DebugWithFields("app opened", logger.Fields{"database": dbType, "redis": a.cache.Enabled()})
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			logger.WarnWithFields("close redis", logger.Fields{"err": err.Error()})
		}
	}
	if err := a.db.Close(); err != nil {
		logger.WarnWithFields("close database", logger.Fields{"err": err.Error()})
	}
}
