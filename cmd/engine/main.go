package main

import (
	"context"
	"log"
	"os"

	"github.com/moodring-exchange/core-engine/internal/api"
	"github.com/moodring-exchange/core-engine/internal/comments"
	"github.com/moodring-exchange/core-engine/internal/config"
	"github.com/moodring-exchange/core-engine/internal/db"
	"github.com/moodring-exchange/core-engine/internal/ledger"
	"github.com/moodring-exchange/core-engine/internal/liquidity"
	"github.com/moodring-exchange/core-engine/internal/realtime"
	"github.com/moodring-exchange/core-engine/internal/resolution"
	"github.com/moodring-exchange/core-engine/internal/risk"
	"github.com/moodring-exchange/core-engine/internal/trade"
)

func main() {
	log.Println("Starting moodring core trading engine...")

	cfgPath := getEnvOrDefault("MOODRING_CONFIG", "configs/config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("FATAL: failed to load config from %s: %v", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: invalid config: %v", err)
	}

	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	if err := db.InitSchema(ctx, pool, "internal/db/schema.sql"); err != nil {
		log.Fatalf("FATAL: failed to initialize schema: %v", err)
	}

	led := ledger.New()
	riskCtl := risk.NewController(cfg.Risk, led)
	bus := realtime.NewBus()

	tradeEngine := trade.NewEngine(pool, led, riskCtl, cfg.Risk, cfg.Fees, cfg.Limits, bus)
	liquidityEngine := liquidity.NewEngine(pool, led, bus)
	resolutionEngine := resolution.NewEngine(pool, led, bus)
	commentsEngine := comments.NewEngine(pool, led, bus)

	r := api.SetupRouter(pool, led, tradeEngine, liquidityEngine, resolutionEngine, commentsEngine, bus)

	addr := ":" + getEnvOrDefault("PORT", "8080")
	log.Printf("moodring engine listening on %s\n", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("FATAL: server exited: %v", err)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
