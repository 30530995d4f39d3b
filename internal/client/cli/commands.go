package cli

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownCommand неизвестная команда
var ErrUnknownCommand = errors.New("unknown command")

// Run выполняет команду. args не включают имя команды.
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "add":
		return c.runAdd(ctx, args)
	case "update":
		return c.runUpdate(ctx, args)
	case "move":
		return c.runMove(ctx, args)
	case "transform":
		return c.runTransform(ctx, args)
	case "delete":
		return c.runDelete(ctx, args)
	case "clear":
		return c.runClear(ctx, args)
	case "list":
		return c.runList(ctx)
	case "region":
		return c.runRegion(ctx, args)
	case "get":
		return c.runGet(ctx, args)
	case "sync":
		return c.runSync(ctx)
	case "pull":
		return c.runPull(ctx)
	case "resync":
		return c.runResync(ctx)
	case "retry":
		return c.runRetry(ctx)
	case "queue":
		return c.runQueue(ctx)
	case "status":
		return c.runStatus(ctx)
	case "watch":
		return c.runWatch(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}
