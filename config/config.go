// Package config loads service configuration: defaults, then an optional TOML
// file, then .env / process environment. Environment always wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env          string             `toml:"env" validate:"oneof=development staging production test"`
	Server       ServerConfig       `toml:"server"`
	Database     DatabaseConfig     `toml:"database"`
	Gamification GamificationConfig `toml:"gamification"`
	Storage      StorageConfig      `toml:"storage"`
}

type ServerConfig struct {
	Port           string   `toml:"port" validate:"required,numeric"`
	ServiceToken   string   `toml:"service_token"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type DatabaseConfig struct {
	URL             string        `toml:"url" validate:"required"`
	MaxOpenConns    int           `toml:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `toml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type GamificationConfig struct {
	Timezone               string        `toml:"timezone" validate:"required"`
	FeedSize               int           `toml:"feed_size" validate:"gte=1,lte=200"`
	CatalogRefreshInterval time.Duration `toml:"catalog_refresh_interval" validate:"gte=0"`
	CatalogCacheSize       int           `toml:"catalog_cache_size" validate:"gte=1"`
}

// StorageConfig: Cloudflare R2 bucket for badge icons. Optional.
type StorageConfig struct {
	AccountID       string `toml:"account_id"`
	AccessKeyID     string `toml:"access_key_id"`
	AccessKeySecret string `toml:"access_key_secret"`
	Bucket          string `toml:"bucket"`
	CDNBaseURL      string `toml:"cdn_base_url"`
	MaxRetries      uint64 `toml:"max_retries"`
}

// Enabled reports whether enough is set to talk to R2.
func (s StorageConfig) Enabled() bool {
	return s.AccountID != "" && s.AccessKeyID != "" && s.AccessKeySecret != "" && s.Bucket != ""
}

// Location resolves the time zone used for calendar-day arithmetic.
func (g GamificationConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid gamification timezone %q: %w", g.Timezone, err)
	}
	return loc, nil
}

func Default() Config {
	return Config{
		Env: "development",
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Gamification: GamificationConfig{
			Timezone:               "UTC",
			FeedSize:               20,
			CatalogRefreshInterval: 10 * time.Minute,
			CatalogCacheSize:       256,
		},
		Storage: StorageConfig{
			MaxRetries: 3,
		},
	}
}

// Load builds the config. path may be empty; a missing .env file is fine.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Gamification.Location(); err != nil {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("APP_ENV", &cfg.Env)
	str("PORT", &cfg.Server.Port)
	str("GAME_SERVICE_TOKEN", &cfg.Server.ServiceToken)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, o)
			}
		}
	}

	str("DATABASE_URL", &cfg.Database.URL)
	if err := num("DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns); err != nil {
		return err
	}
	if err := num("DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns); err != nil {
		return err
	}

	str("GAMIFICATION_TIMEZONE", &cfg.Gamification.Timezone)
	if err := num("GAMIFICATION_FEED_SIZE", &cfg.Gamification.FeedSize); err != nil {
		return err
	}
	if err := dur("CATALOG_REFRESH_INTERVAL", &cfg.Gamification.CatalogRefreshInterval); err != nil {
		return err
	}
	if err := num("CATALOG_CACHE_SIZE", &cfg.Gamification.CatalogCacheSize); err != nil {
		return err
	}

	str("CLOUDFLARE_ACCOUNT_ID", &cfg.Storage.AccountID)
	str("R2_ACCESS_KEY_ID", &cfg.Storage.AccessKeyID)
	str("R2_ACCESS_KEY_SECRET", &cfg.Storage.AccessKeySecret)
	str("R2_BUCKET_NAME", &cfg.Storage.Bucket)
	str("CDN_BASE_URL", &cfg.Storage.CDNBaseURL)
	if v := os.Getenv("ICON_UPLOAD_MAX_RETRIES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ICON_UPLOAD_MAX_RETRIES: %w", err)
		}
		cfg.Storage.MaxRetries = n
	}
	return nil
}
