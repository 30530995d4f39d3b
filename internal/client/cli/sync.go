package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/boardsync/internal/client/queue"
)

func (c *Cli) runSync(ctx context.Context) error {
	c.io.Println("=== Synchronization ===")

	result, err := c.queue.Sync(ctx)
	if err != nil {
		c.io.Printf("✗ Push failed: %d operations marked failed\n", result.Failed)
		return fmt.Errorf("sync failed: %w", err)
	}
	c.printSyncResult(result)

	pulled, err := c.syncService.Pull(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	c.io.Printf("Pulled:         %d operations (%d applied)\n", pulled.Received, pulled.Applied)
	c.io.Printf("Server version: %d\n", pulled.Version)
	c.io.Println()
	c.io.Println("✓ Synchronization completed successfully!")
	return nil
}

func (c *Cli) runPull(ctx context.Context) error {
	result, err := c.syncService.Pull(ctx)
	if err != nil {
		return err
	}

	c.io.Printf("✓ Pulled %d operations (%d applied), server version %d\n",
		result.Received, result.Applied, result.Version)
	return nil
}

func (c *Cli) runResync(ctx context.Context) error {
	if err := c.syncService.Resync(ctx); err != nil {
		return err
	}

	c.io.Printf("✓ Board replaced with server snapshot: %d objects, server version %d\n",
		len(c.manager.GetObjects()), c.syncService.ServerVersion())
	return nil
}

func (c *Cli) runRetry(ctx context.Context) error {
	failed := len(c.queue.Failed())
	if failed == 0 {
		c.io.Println("No failed operations")
		return nil
	}

	c.io.Printf("Retrying %d failed operations...\n", failed)
	result, err := c.queue.RetryFailed(ctx)
	if err != nil {
		c.io.Printf("✗ Retry failed: %d operations marked failed\n", result.Failed)
		return fmt.Errorf("retry failed: %w", err)
	}
	c.printSyncResult(result)
	return nil
}

func (c *Cli) printSyncResult(result *queue.SyncResult) {
	switch result.Skipped {
	case queue.SkipNone:
		c.io.Printf("Pushed:         %d operations\n", result.Synced)
	case queue.SkipEmpty:
		c.io.Println("Pushed:         nothing to push")
	case queue.SkipOffline:
		c.io.Println("Pushed:         skipped, offline")
	case queue.SkipInProgress:
		c.io.Println("Pushed:         skipped, sync already in progress")
	}
}
