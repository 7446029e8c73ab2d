package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "localtube/internal/api/http"
	"localtube/internal/app"
	"localtube/internal/metrics"
	mongorepo "localtube/internal/repository/mongo"
	"localtube/internal/services/extractor/ytdlp"
	"localtube/internal/services/tasks"
	"localtube/internal/services/vpn/gluetun"
	"localtube/internal/telemetry"
	"localtube/internal/usecase"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "localtube")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	mediaDir := app.ResolveMediaDir(cfg.MediaDir, logger)
	ytdlpConcurrency := app.ResolveYtdlpConcurrency(cfg.YtdlpConcurrency, logger)

	logger.Info("configuration loaded",
		slog.String("service", "localtube"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("mediaDir", mediaDir),
		slog.String("ytdlpPath", cfg.YtdlpPath),
		slog.Int("ytdlpConcurrency", ytdlpConcurrency),
		slog.Bool("gluetunControl", cfg.GluetunControlAddr != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer cancel()

	mongoOpts := otelmongo.NewMonitor()
	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(mongoOpts))
	if err != nil {
		logger.Error("mongo connect failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
		logger.Error("mongo ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store := mongorepo.NewStore(mongoClient, cfg.MongoDatabase)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}

	registry := tasks.NewRegistry(logger)
	go registry.Run(rootCtx)

	gate := tasks.NewGate(ytdlpConcurrency)
	extractor := ytdlp.New(cfg.YtdlpPath, mediaDir, ytdlp.NewDebugCapture(cfg.YtdlpDebug, logger), logger)

	downloadUC := usecase.DownloadMedia{
		Store:     store,
		Extractor: extractor,
		Registry:  registry,
		Gate:      gate,
		Logger:    logger,
	}
	refreshUC := usecase.RefreshSource{
		Store:     store,
		Extractor: extractor,
		Registry:  registry,
		Gate:      gate,
		Downloads: downloadUC,
		Logger:    logger,
		MediaDir:  mediaDir,
	}
	scheduler := usecase.RefreshScheduler{Store: store, Refreshes: refreshUC, Logger: logger}
	go scheduler.Run(rootCtx)

	createUC := usecase.CreateSource{Store: store, Refreshes: scheduler, Logger: logger}
	updateUC := usecase.UpdateSource{Store: store, Refreshes: scheduler, Logger: logger}
	redownloadUC := usecase.RedownloadMedia{Store: store, Downloads: downloadUC, Logger: logger, MediaDir: mediaDir}

	supervisor := usecase.NewVPNSupervisor(registry, logger)
	if gluetunCfg, ok := gluetun.NewConfig(cfg.GluetunControlAddr); ok {
		supervisor.Activate(gluetun.New(gluetunCfg))
		logger.Info("gluetun supervision enabled", slog.String("controlAddr", cfg.GluetunControlAddr))
	}

	handler := apihttp.NewServer(createUC,
		apihttp.WithStore(store),
		apihttp.WithUpdateSource(updateUC),
		apihttp.WithRedownloadMedia(redownloadUC),
		apihttp.WithRegistry(registry),
		apihttp.WithVPNRestartTrigger(supervisor),
		apihttp.WithMediaDir(mediaDir),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	supervisor.Deactivate()
	if err := mongoClient.Disconnect(context.Background()); err != nil {
		logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
