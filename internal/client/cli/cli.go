package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/boardsync/internal/board"
	"github.com/iudanet/boardsync/internal/client/iocli"
	"github.com/iudanet/boardsync/internal/client/queue"
	"github.com/iudanet/boardsync/internal/client/realtime"
	"github.com/iudanet/boardsync/internal/client/sync"
)

//go:generate moq -out cli_mock.go . SyncService Watcher

// SyncService обмен состоянием доски с сервером
type SyncService interface {
	Pull(ctx context.Context) (*sync.PullResult, error)
	Resync(ctx context.Context) error
	Persist(ctx context.Context)
	ServerVersion() int64
}

// Watcher держит realtime-подписку на доску до отмены ctx
type Watcher interface {
	Run(ctx context.Context, listener realtime.ConnectionListener) error
}

type Cli struct {
	io          iocli.IO
	manager     *board.Manager
	queue       *queue.Queue
	syncService SyncService
	watcher     Watcher
	events      *EventPrinter
	boardID     string
}

// Option настраивает Cli
type Option func(*Cli)

// WithWatcher включает команду watch.
func WithWatcher(w Watcher) Option {
	return func(c *Cli) { c.watcher = w }
}

// WithEvents задает печать событий доски в режиме watch.
func WithEvents(events *EventPrinter) Option {
	return func(c *Cli) { c.events = events }
}

func New(io iocli.IO, manager *board.Manager, q *queue.Queue, syncService SyncService, opts ...Option) *Cli {
	c := &Cli{
		io:          io,
		manager:     manager,
		queue:       q,
		syncService: syncService,
		boardID:     q.BoardID(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func PrintUsage() {
	fmt.Println("BoardSync Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  boardsync [OPTIONS] COMMAND [ARGS]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version                    Show version information")
	fmt.Println("  --server URL                 Server URL (default: http://localhost:8080, env BOARDSYNC_SERVER)")
	fmt.Println("  --db PATH                    Path to local database (default: boardsync-client.db)")
	fmt.Println("  --board ID                   Board to work with (default: default, env BOARDSYNC_BOARD)")
	fmt.Println("  --max-queue N                Offline queue capacity (default: 1000)")
	fmt.Println("  --verbose                    Enable debug logging")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  add <type> [key=value ...]   Add object (stroke, shape, text, image, sticky)")
	fmt.Println("  update <id> key=value ...    Update object fields")
	fmt.Println("  move <id> <x> <y>            Move object")
	fmt.Println("  transform <id> key=value ... Change object geometry (width, height, rotation)")
	fmt.Println("  delete <id>                  Delete object")
	fmt.Println("  clear [--yes]                Remove all objects from the board")
	fmt.Println("  list                         List board objects")
	fmt.Println("  region <x> <y> <w> <h>       List objects intersecting the region")
	fmt.Println("  get <id>                     Show object details")
	fmt.Println("  sync                         Push queued operations and pull remote ones")
	fmt.Println("  pull                         Pull remote operations")
	fmt.Println("  resync                       Replace local board with server snapshot")
	fmt.Println("  retry                        Retry failed operations")
	fmt.Println("  queue                        Show offline queue")
	fmt.Println("  status                       Show replica and queue status")
	fmt.Println("  watch                        Follow board changes in realtime")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  boardsync --board planning add sticky x=10 y=20 text=\"Ship it\" color=yellow")
	fmt.Println("  boardsync --board planning move 6f1c... 120 40")
	fmt.Println("  boardsync --board planning sync")
	fmt.Println("  boardsync --server https://example.com --board planning watch")
}
