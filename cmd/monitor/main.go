package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"loginwatch/internal/bot"
	"loginwatch/internal/config"
	"loginwatch/internal/fetcher"
	"loginwatch/internal/metrics"
	"loginwatch/internal/model"
	"loginwatch/internal/report"
	"loginwatch/internal/scheduler"
	"loginwatch/internal/storage"
)

const browserSettle = 2 * time.Second

func main() {
	once := flag.Bool("once", false, "capture every target once and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	targets, err := config.LoadTargets(cfg.TargetsFile, cfg.CheckInterval)
	if err != nil {
		log.Error("load targets", "path", cfg.TargetsFile, "error", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	reporters := report.Multi{report.NewLog(log)}
	if cfg.CSVReportPath != "" {
		reporters = append(reporters, report.NewCSV(cfg.CSVReportPath))
	}

	var b *bot.Bot
	if cfg.TelegramBotToken != "" {
		b, err = bot.New(cfg.TelegramBotToken, store, cfg, log)
		if err != nil {
			log.Error("create bot", "error", err)
			os.Exit(1)
		}
		reporters = append(reporters, b)
	}

	fetchers := fetcher.ByMode{
		model.FetchHTTP:    fetcher.NewHTTP(&http.Client{}),
		model.FetchBrowser: fetcher.NewBrowser(browserSettle),
	}

	sched := scheduler.New(store, fetchers, reporters, log)
	sched.SetFetchTimeout(cfg.FetchTimeout)
	sched.SetConcurrency(cfg.Concurrency)
	sched.SetFailureThreshold(cfg.FailureAlertThreshold)

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		sched.SetMetrics(m)
	}

	for _, t := range targets {
		if err := sched.AddTarget(t); err != nil {
			log.Error("add target", "target", t.ID, "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		log.Info("running single cycle", "targets", len(targets))
		sched.RunOnce(ctx)
		return
	}

	if m != nil {
		go serveMetrics(ctx, cfg.MetricsAddr, m, log)
	}

	log.Info("starting monitor", "targets", len(targets))

	if b != nil {
		b.SetMonitor(sched)
		go b.Run(ctx)
	}

	sched.Run(ctx)

	log.Info("monitor stopped")
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, log *slog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics shutdown", "error", err)
		}
	}()

	log.Info("metrics server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
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
