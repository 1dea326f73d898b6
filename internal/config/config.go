package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the job fleet
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Shopify   ShopifyConfig   `yaml:"shopify"`
	Pinterest PinterestConfig `yaml:"pinterest"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Video     VideoConfig     `yaml:"video"`
	Storage   StorageConfig   `yaml:"storage"`
	Jobs      JobsConfig      `yaml:"jobs"`
}

// DatabaseConfig holds the relational store connection settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis connection for locks and rate limits
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// ShopifyConfig holds commerce platform API settings.
// Per-tenant shop hostnames and access tokens live in the database;
// this only carries API version and timeouts.
type ShopifyConfig struct {
	APIVersion     string `yaml:"api_version"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c ShopifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PinterestConfig holds ad platform OAuth app credentials
type PinterestConfig struct {
	AppID          string `yaml:"app_id"`
	AppSecret      string `yaml:"app_secret"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c PinterestConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OpenAIConfig holds the image-edit API settings
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// VideoConfig holds the video-generation API settings
type VideoConfig struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	Model              string `yaml:"model"`
	PollBudgetSeconds  int    `yaml:"poll_budget_seconds"`
	PollIntervalSecond int    `yaml:"poll_interval_seconds"`
}

// PollBudget returns the total polling budget for one video operation
func (c VideoConfig) PollBudget() time.Duration {
	return time.Duration(c.PollBudgetSeconds) * time.Second
}

// PollInterval returns the interval between operation polls
func (c VideoConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecond) * time.Second
}

// StorageConfig holds creative object storage settings
type StorageConfig struct {
	S3Bucket  string `yaml:"s3_bucket"`
	S3Prefix  string `yaml:"s3_prefix"`
	AWSRegion string `yaml:"aws_region"`
	PublicURL string `yaml:"public_url"` // overrides the default bucket URL when set
}

// JobsConfig holds run-level tuning shared by the pipelines
type JobsConfig struct {
	RunBudgetMinutes int `yaml:"run_budget_minutes"`
	TenantFanOut     int `yaml:"tenant_fan_out"`
	SettleDelaySecs  int `yaml:"settle_delay_seconds"`
}

// RunBudget returns the hard ceiling for one pipeline invocation
func (c JobsConfig) RunBudget() time.Duration {
	return time.Duration(c.RunBudgetMinutes) * time.Minute
}

// SettleDelay returns the wait between the tag swap and the reorder pass,
// giving the smart collection time to re-evaluate
func (c JobsConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelaySecs) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Shopify.APIVersion == "" {
		cfg.Shopify.APIVersion = "2024-07"
	}
	if cfg.Shopify.TimeoutSeconds == 0 {
		cfg.Shopify.TimeoutSeconds = 30
	}
	if cfg.Pinterest.BaseURL == "" {
		cfg.Pinterest.BaseURL = "https://api.pinterest.com/v5"
	}
	if cfg.Pinterest.TimeoutSeconds == 0 {
		cfg.Pinterest.TimeoutSeconds = 30
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-image-1"
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 60
	}
	if cfg.Video.BaseURL == "" {
		cfg.Video.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Video.Model == "" {
		cfg.Video.Model = "veo-2.0-generate-001"
	}
	if cfg.Video.PollBudgetSeconds == 0 {
		cfg.Video.PollBudgetSeconds = 300
	}
	if cfg.Video.PollIntervalSecond == 0 {
		cfg.Video.PollIntervalSecond = 10
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Storage.S3Prefix == "" {
		cfg.Storage.S3Prefix = "winner-creatives/"
	}
	if cfg.Jobs.RunBudgetMinutes == 0 {
		cfg.Jobs.RunBudgetMinutes = 30
	}
	if cfg.Jobs.TenantFanOut == 0 {
		cfg.Jobs.TenantFanOut = 5
	}
	if cfg.Jobs.SettleDelaySecs == 0 {
		cfg.Jobs.SettleDelaySecs = 45
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars on the scheduler host.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SHOPIFY_API_VERSION"); v != "" {
		cfg.Shopify.APIVersion = v
	}
	if v := os.Getenv("PINTEREST_APP_ID"); v != "" {
		cfg.Pinterest.AppID = v
	}
	if v := os.Getenv("PINTEREST_APP_SECRET"); v != "" {
		cfg.Pinterest.AppSecret = v
	}
	if v := os.Getenv("PINTEREST_BASE_URL"); v != "" {
		cfg.Pinterest.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("VIDEO_API_KEY"); v != "" {
		cfg.Video.APIKey = v
	}
	if v := os.Getenv("VIDEO_BASE_URL"); v != "" {
		cfg.Video.BaseURL = v
	}
	if v := os.Getenv("CREATIVES_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("CREATIVES_S3_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	if v := os.Getenv("CREATIVES_PUBLIC_URL"); v != "" {
		cfg.Storage.PublicURL = v
	}

	return cfg, nil
}

// Validate checks that the settings a pipeline cannot run without are present.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	return nil
}
