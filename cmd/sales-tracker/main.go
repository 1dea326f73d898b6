package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/podpilot/internal/config"
	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/jobs"
	"github.com/ignite/podpilot/internal/jobs/salestracker"
	"github.com/ignite/podpilot/internal/ratelimit"
	"github.com/ignite/podpilot/internal/shopify"
	"github.com/ignite/podpilot/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	log.Println("Starting sales tracker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := store.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer db.Close()
	st := store.NewStore(db)
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("parse redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}
	limiter := ratelimit.NewLimiter(redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := &salestracker.Tracker{
		Store: st,
		Commerce: func(t *domain.Tenant) salestracker.Commerce {
			return shopify.NewClient(t.ShopDomain, t.AccessToken, cfg.Shopify.APIVersion, limiter)
		},
		FanOut: cfg.Jobs.TenantFanOut,
		Now:    time.Now,
	}

	if err := jobs.Run(ctx, st, redisClient, db, domain.JobSalesTracker, cfg.Jobs.RunBudget(), tracker.Run); err != nil {
		log.Fatalf("sales tracker: %v", err)
	}
}
