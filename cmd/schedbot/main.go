package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"schedbot/internal/api"
	"schedbot/internal/cache"
	"schedbot/internal/config"
	"schedbot/internal/engine"
	"schedbot/internal/logging"
	"schedbot/internal/platform"
	"schedbot/internal/schedule"
	"schedbot/internal/scheduler"
	"schedbot/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("configuration failed", slog.Any("err", err))
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.Error("schedbot exited with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	messages := store.NewPostgresMessageStore(db)
	logs := store.NewPostgresExecutionLogStore(db)

	var prefs store.PreferenceStore = store.NewPostgresPreferenceStore(db, store.PreferenceDefaults{
		Timezone:   cfg.Messages.DefaultTimezone,
		MaxPending: cfg.Messages.DefaultMaxPending,
	})

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, preference cache disabled", slog.Any("err", err))
		} else {
			prefs = cache.NewPreferenceCache(rdb, cfg.Redis.TTL, prefs)
			log.Info("preference cache enabled", slog.String("addr", cfg.Redis.Address))
		}
	}

	messenger, err := platform.NewTelegram(platform.Config{
		Token:       cfg.Telegram.Token,
		SendTimeout: cfg.Telegram.SendTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, log)
	if err != nil {
		return err
	}

	eng, err := engine.New(engine.Options{
		Messages:    messages,
		Logs:        logs,
		Prefs:       prefs,
		Messenger:   messenger,
		MaxRetries:  cfg.Scheduler.MaxRetries,
		BatchSize:   cfg.Scheduler.BatchSize,
		Concurrency: cfg.Scheduler.Concurrency,
		SendTimeout: cfg.Telegram.SendTimeout,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	sched, err := scheduler.New(cfg.Scheduler.Interval, eng.Tick, log)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	svc := schedule.NewService(messages, prefs, logs, cfg.Messages.ContentMax)
	handler := loggingMiddleware(api.Router(api.NewHandler(svc, sched)))

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", cfg.Server.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("schedbot stopped")
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(sw, r)

		slog.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}
