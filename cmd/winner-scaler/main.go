package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/podpilot/internal/config"
	"github.com/ignite/podpilot/internal/creative"
	"github.com/ignite/podpilot/internal/domain"
	"github.com/ignite/podpilot/internal/jobs"
	"github.com/ignite/podpilot/internal/jobs/winners"
	"github.com/ignite/podpilot/internal/objectstore"
	"github.com/ignite/podpilot/internal/pinterest"
	"github.com/ignite/podpilot/internal/pkg/httpretry"
	"github.com/ignite/podpilot/internal/ratelimit"
	"github.com/ignite/podpilot/internal/shopify"
	"github.com/ignite/podpilot/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	log.Println("Starting winner scaler...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Storage.S3Bucket == "" {
		log.Fatal("CREATIVES_S3_BUCKET is required for the winner scaler")
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

	uploader, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Bucket:    cfg.Storage.S3Bucket,
		Prefix:    cfg.Storage.S3Prefix,
		Region:    cfg.Storage.AWSRegion,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		log.Fatalf("creative storage: %v", err)
	}

	authn := pinterest.NewAuthenticator(cfg.Pinterest.AppID, cfg.Pinterest.AppSecret, "", st, redisClient, db)

	scaler := &winners.Scaler{
		Store: st,
		Commerce: func(t *domain.Tenant) winners.Commerce {
			return shopify.NewClient(t.ShopDomain, t.AccessToken, cfg.Shopify.APIVersion, limiter)
		},
		Ads: func(a *domain.PinterestAuth) winners.Ads {
			client := pinterest.NewClient(cfg.Pinterest.BaseURL, a.AccessToken, limiter)
			client.SetTokenRefresher(authn.Refresher(a))
			return client
		},
		Auth:              authn,
		Images:            httpretry.NewRetryClient(&http.Client{Timeout: cfg.Shopify.Timeout()}, 3),
		ImageGen:          creative.NewImageClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, limiter),
		VideoGen:          creative.NewVideoClient(cfg.Video.BaseURL, cfg.Video.APIKey, cfg.Video.Model, cfg.Video.PollInterval(), cfg.Video.PollBudget(), limiter),
		Uploader:          uploader,
		MediaPollInterval: cfg.Video.PollInterval(),
		MediaPollBudget:   cfg.Video.PollBudget(),
		FanOut:            cfg.Jobs.TenantFanOut,
		Now:               time.Now,
	}

	if err := jobs.Run(ctx, st, redisClient, db, domain.JobWinnerScaler, cfg.Jobs.RunBudget(), scaler.Run); err != nil {
		log.Fatalf("winner scaler: %v", err)
	}
}
