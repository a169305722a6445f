package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/okadachi/chess-issue-bot/internal/archive"
	appcfg "github.com/okadachi/chess-issue-bot/internal/config"
	"github.com/okadachi/chess-issue-bot/internal/engine"
	"github.com/okadachi/chess-issue-bot/internal/msgcat"
	"github.com/okadachi/chess-issue-bot/internal/obslog"
	"github.com/okadachi/chess-issue-bot/internal/render"
	"github.com/okadachi/chess-issue-bot/internal/run"
	"github.com/okadachi/chess-issue-bot/internal/store"
	"github.com/okadachi/chess-issue-bot/internal/tracker"
)

func main() {
	threadID := flag.String("thread", "", "tracker thread id to process (falls back to THREAD_ID)")
	timeout := flag.Duration("timeout", 90*time.Second, "overall invocation deadline")
	flag.Parse()

	id := *threadID
	if id == "" {
		id = os.Getenv("THREAD_ID")
	}
	if id == "" {
		log.Fatal("thread id required: pass -thread or set THREAD_ID")
	}

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.L().Sync()

	opts, err := store.ParseRedisURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	client := tracker.NewClient(cfg.TrackerBaseURL,
		tracker.WithHeaderProvider(tracker.BearerHeaders(cfg.TrackerToken)),
		tracker.WithRetry(3),
	)

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	var archiver run.Archiver
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		defer repo.Close()
		archiver = repo
	}

	coord := run.New(run.Deps{
		Tracker:     client,
		Games:       store.NewGameStore(rdb),
		Engine:      engine.New(store.NewQuotaLedger(rdb, cfg.MaxConcurrentGames, cfg.OperatorLogins)),
		Catalog:     catalog,
		Renderer:    render.NewBoardRenderer(),
		Assets:      render.NewFileAssetStore(cfg.AssetDir, cfg.AssetBaseURL),
		Archive:     archiver,
		BotIdentity: cfg.BotIdentity,
		LeaseTTL:    time.Duration(cfg.LeaseTTLSec) * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := coord.Run(ctx, id); err != nil {
		obslog.L().Error("run_failed", zap.String("thread_id", id), zap.Error(err))
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
	obslog.L().Info("run_complete", zap.String("thread_id", id))
}
