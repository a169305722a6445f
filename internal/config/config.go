package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// AppConfig carries everything one invocation needs. All values come from
// the environment; the trigger that starts a run supplies only the thread id.
type AppConfig struct {
	TrackerBaseURL string
	TrackerToken   string
	BotIdentity    string

	RedisURL    string
	DatabaseURL string

	MaxConcurrentGames int
	OperatorLogins     []string

	MessagesDir  string
	AssetDir     string
	AssetBaseURL string

	LeaseTTLSec int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		MaxConcurrentGames: 5,
		AssetDir:           "data/boards",
		LeaseTTLSec:        120,
	}

	cfg.TrackerBaseURL = strings.TrimSpace(os.Getenv("TRACKER_BASE_URL"))
	cfg.TrackerToken = strings.TrimSpace(os.Getenv("TRACKER_TOKEN"))
	cfg.BotIdentity = strings.TrimSpace(os.Getenv("BOT_IDENTITY"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	cfg.AssetBaseURL = strings.TrimSpace(os.Getenv("ASSET_BASE_URL"))

	if v := strings.TrimSpace(os.Getenv("ASSET_DIR")); v != "" {
		cfg.AssetDir = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_GAMES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentGames = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LEASE_TTL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LeaseTTLSec = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPERATOR_LOGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.OperatorLogins = append(cfg.OperatorLogins, s)
			}
		}
	}

	if cfg.TrackerBaseURL == "" {
		return nil, errors.New("TRACKER_BASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	return cfg, nil
}
