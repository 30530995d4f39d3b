package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iudanet/boardsync/internal/server/boards"
	"github.com/iudanet/boardsync/internal/server/handlers"
	"github.com/iudanet/boardsync/internal/server/hub"
	"github.com/iudanet/boardsync/internal/server/metrics"
	"github.com/iudanet/boardsync/internal/server/middleware"
	"github.com/iudanet/boardsync/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	shutdownTimeout = 10 * time.Second
	brokerBuffer    = 1024
)

type config struct {
	addr       string
	dbPath     string
	redisAddr  string
	pushRate   int
	pushWindow time.Duration
	verbose    bool
}

func main() {
	// Parse flags
	showVersion := flag.Bool("version", false, "Show version information")

	var cfg config
	flag.StringVar(&cfg.addr, "addr", envOr("BOARDSYNC_ADDR", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.dbPath, "db", envOr("BOARDSYNC_DB", "boardsync-server.db"), "Path to operation log database")
	flag.StringVar(&cfg.redisAddr, "redis", os.Getenv("BOARDSYNC_REDIS_ADDR"), "Redis address for cross-instance fan-out (empty: in-process)")
	flag.IntVar(&cfg.pushRate, "push-rate", 120, "Max push requests per client and board within -push-window")
	flag.DurationVar(&cfg.pushWindow, "push-window", time.Minute, "Rate limit window for pushes")
	flag.BoolVar(&cfg.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("Server failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg config) error {
	store, err := sqlite.New(ctx, cfg.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", "error", err)
		}
	}()

	registry := boards.NewRegistry(store, logger)
	defer registry.Close()

	loaded, err := registry.Preload(ctx)
	if err != nil {
		return fmt.Errorf("failed to preload boards: %w", err)
	}
	metrics.BoardsLoaded.Set(float64(loaded))
	logger.Info("Boards loaded", "count", loaded)

	broker, err := newBroker(ctx, cfg.redisAddr, logger)
	if err != nil {
		return err
	}

	h := hub.New(broker, logger)
	defer h.Close()

	hubDone := make(chan error, 1)
	go func() { hubDone <- h.Run(ctx) }()

	limiter := middleware.NewRateLimiter(cfg.pushRate, cfg.pushWindow, logger)
	defer limiter.Stop()

	router := mux.NewRouter()
	router.Use(middleware.MetricsMiddleware)
	router.Use(middleware.LoggingWithSkip(logger, []string{"/api/v1/health", "/metrics"}))

	router.HandleFunc("/api/v1/health", handlers.NewHealthHandler(logger, Version).Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	handlers.NewBoardHandler(registry, h, logger).Register(router, limiter.Middleware(middleware.ClientBoardKey))

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           middleware.RecoveryMiddleware(logger)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", cfg.addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case err := <-hubDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Realtime hub stopped", "error", err)
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Websocket соединения Shutdown не закрывает, их закрывает h.Close
	h.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	if err := broker.Close(); err != nil {
		logger.Warn("Failed to close broker", "error", err)
	}
	return nil
}

// newBroker выбирает Redis при заданном адресе, иначе доставку в пределах процесса
func newBroker(ctx context.Context, redisAddr string, logger *slog.Logger) (hub.Broker, error) {
	if redisAddr == "" {
		logger.Info("Using in-process realtime broker")
		return hub.NewMemoryBroker(brokerBuffer), nil
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", redisAddr, err)
	}

	logger.Info("Using redis realtime broker", "addr", redisAddr)
	return hub.NewRedisBroker(client, hub.DefaultChannelPrefix, logger), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printVersion() {
	fmt.Printf("BoardSync Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
