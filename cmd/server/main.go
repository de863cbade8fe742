package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"viralscope/internal/analysis"
	"viralscope/internal/api"
	"viralscope/internal/auth"
	"viralscope/internal/bot"
	"viralscope/internal/calibration"
	"viralscope/internal/config"
	"viralscope/internal/creator"
	"viralscope/internal/events"
	"viralscope/internal/pipeline"
	"viralscope/internal/storage"
	"viralscope/internal/trend"
	"viralscope/internal/understanding"
	"viralscope/internal/usage"
)

const (
	trendFetchTimeout = 15 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireServer()
	}
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	var rdb *redis.Client
	var counter usage.Counter = store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		counter = usage.NewRedisCounter(rdb)
		log.Info("using redis for usage counters and creator cache")
	}

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers)
		defer func() { _ = kp.Close() }()
		pub = kp
		log.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers)
	}

	notifier := &operatorNotifier{target: bot.LogNotifier{Log: log}}
	validator := calibration.NewValidator(store, pub, notifier, log)

	var console *bot.Bot
	if cfg.TelegramBotToken != "" {
		console, err = bot.New(cfg.TelegramBotToken, cfg.OperatorChatID, store, counter, validator, log)
		if err != nil {
			return fmt.Errorf("create operator console: %w", err)
		}
		notifier.target = console
	}

	model := understanding.NewClient(&http.Client{Timeout: cfg.ModelTimeout}, cfg.ModelURL, cfg.ModelAPIKey)
	trends := trend.NewScorer(trend.NewSource(
		trend.NewFetcher(&http.Client{Timeout: trendFetchTimeout}),
		cfg.TrendFeeds, cfg.TrendTTL, log,
	))
	p := pipeline.New(model, creator.NewLookup(store, rdb, log), trends, store, cfg.StageTimeout, log)
	svc := analysis.NewService(usage.NewGate(counter), p, store, pub, notifier, log)

	handler := api.NewHandler(svc, validator, auth.NewJobVerifier([]byte(cfg.JobSigningKey)), store, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		calibration.NewScheduler(validator, cfg.CalibrationInterval, log).Run(ctx)
		return nil
	})
	if console != nil {
		g.Go(func() error {
			log.Info("starting operator console", "chat_id", cfg.OperatorChatID)
			console.Run(ctx)
			return nil
		})
	}

	err = g.Wait()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelDrain()
	if derr := svc.Wait(drainCtx); derr != nil {
		log.Warn("analyses still running at shutdown", "error", derr)
	}
	return err
}

// operatorNotifier routes operator messages to the Telegram console when one
// is configured and to the log otherwise. target is fixed before serving.
type operatorNotifier struct {
	target analysis.Notifier
}

func (n *operatorNotifier) Notify(ctx context.Context, text string) error {
	return n.target.Notify(ctx, text)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
