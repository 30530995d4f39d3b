package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/boardsync/internal/board"
	"github.com/iudanet/boardsync/internal/client/api"
	"github.com/iudanet/boardsync/internal/client/cli"
	"github.com/iudanet/boardsync/internal/client/iocli"
	"github.com/iudanet/boardsync/internal/client/queue"
	"github.com/iudanet/boardsync/internal/client/realtime"
	"github.com/iudanet/boardsync/internal/client/storage/boltdb"
	"github.com/iudanet/boardsync/internal/client/sync"
	"github.com/iudanet/boardsync/internal/validation"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", envOr("BOARDSYNC_SERVER", "http://localhost:8080"), "Server URL")
	dbPath := flag.String("db", "boardsync-client.db", "Path to local database")
	boardID := flag.String("board", envOr("BOARDSYNC_BOARD", "default"), "Board ID")
	maxQueue := flag.Int("max-queue", queue.DefaultMaxQueueSize, "Offline queue capacity")
	verbose := flag.Bool("verbose", false, "Enable debug logging")

	flag.Usage = cli.PrintUsage
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// Получаем команду
	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}
	command := args[0]

	if err := validation.ValidateBoardID(*boardID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// Контекст отменяется по Ctrl+C, чтобы watch завершался корректно
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *serverURL, *dbPath, *boardID, *maxQueue, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, cli.ErrUnknownCommand) {
			cli.PrintUsage()
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, serverURL, dbPath, boardID string, maxQueue int, command string, args []string) error {
	// Открываем BoltDB storage
	boltStorage, err := boltdb.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	nodeID, err := ensureNodeID(ctx, boltStorage)
	if err != nil {
		return err
	}

	stdio := iocli.NewStdio()
	events := cli.NewEventPrinter(stdio)
	manager := board.NewManager(nodeID, events, logger)
	defer manager.Destroy()

	apiClient := api.NewClient(serverURL, logger)
	syncService := sync.NewService(boardID, manager, apiClient, boltStorage, boltStorage, logger)
	if err := syncService.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore board: %w", err)
	}

	cfg := queue.DefaultConfig(boardID)
	cfg.MaxQueueSize = maxQueue
	queueOpts := []queue.Option{queue.WithApplier(manager)}
	cliOpts := []cli.Option{cli.WithEvents(events)}

	if command == "watch" {
		// в режиме watch сеть определяется realtime-соединением,
		// а повторная отправка идет в фоне с экспоненциальной задержкой
		rt, err := realtime.NewClient(serverURL, boardID, syncService, logger)
		if err != nil {
			return err
		}
		registrar := queue.NewBackoffRegistrar(logger, 5*time.Minute)
		defer registrar.Close()

		queueOpts = append(queueOpts, queue.WithNetworkStatus(rt), queue.WithRegistrar(registrar))
		cliOpts = append(cliOpts, cli.WithWatcher(rt))
	} else {
		// разовая команда: синхронизация только по явному sync/retry
		cfg.AutoSync = false
	}

	q := queue.New(cfg, boltStorage, syncService.Transmit, logger, queueOpts...)
	defer q.Close()

	return cli.New(stdio, manager, q, syncService, cliOpts...).Run(ctx, command, args)
}

// ensureNodeID возвращает сохраненный идентификатор реплики или создает новый
func ensureNodeID(ctx context.Context, store *boltdb.Storage) (string, error) {
	nodeID, err := store.GetNodeID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get node id: %w", err)
	}
	if nodeID != "" {
		return nodeID, nil
	}

	nodeID = uuid.New().String()
	if err := store.SaveNodeID(ctx, nodeID); err != nil {
		return "", fmt.Errorf("failed to save node id: %w", err)
	}
	return nodeID, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printVersion() {
	fmt.Printf("BoardSync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
