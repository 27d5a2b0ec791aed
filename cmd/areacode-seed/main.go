package main

import (
	"context"
	"os"

	"leadflow_backend/internal/leads/region"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
)

const defaultSeedFile = "seeds/area_codes.yaml"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)

	path := defaultSeedFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	} else if env := os.Getenv("AREA_CODE_SEED_FILE"); env != "" {
		path = env
	}
	log.Info("starting area code seed", "file", path)

	records, err := region.LoadSeedFile(path)
	if err != nil {
		log.Error("failed to load seed file", "file", path, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	if err := region.NewRepository(pool).Upsert(ctx, records); err != nil {
		log.Error("failed to upsert area codes", "error", err)
		pool.Close()
		os.Exit(1)
	}

	if cfg.GetRedisURL() != "" {
		codes := make([]int, len(records))
		for i, rec := range records {
			codes[i] = rec.AreaCode
		}
		client, err := region.NewRedisClient(cfg.GetRedisURL())
		if err == nil {
			cache := region.NewCachedLookup(client, nil, cfg.GetAreaCodeCacheTTL(), log)
			if err := cache.Invalidate(ctx, codes...); err != nil {
				log.Warn("failed to invalidate area code cache", "error", err)
			}
			_ = client.Close()
		} else {
			log.Warn("area code cache not invalidated", "error", err)
		}
	}

	log.Info("area codes seeded", "count", len(records))
}
