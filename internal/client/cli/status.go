package cli

import (
	"context"
)

func (c *Cli) runStatus(_ context.Context) error {
	stats := c.queue.Stats()

	c.io.Println("=== Replica ===")
	c.io.Printf("Node ID:        %s\n", c.manager.NodeID())
	c.io.Printf("Board:          %s\n", c.boardID)
	c.io.Printf("Objects:        %d\n", len(c.manager.GetObjects()))
	c.io.Printf("Local version:  %d\n", c.manager.Version())
	c.io.Printf("Server version: %d\n", c.syncService.ServerVersion())
	c.io.Println()
	c.io.Println("=== Offline queue ===")
	c.io.Printf("Total:          %d\n", stats.Total)
	c.io.Printf("Pending:        %d\n", stats.Pending)
	c.io.Printf("Failed:         %d\n", stats.Failed)
	if stats.Failed > 0 {
		c.io.Println("Run 'boardsync retry' to resend failed operations")
	}
	return nil
}

func (c *Cli) runQueue(_ context.Context) error {
	items := c.queue.Items()

	c.io.Printf("=== Offline queue: %s ===\n", c.boardID)
	if len(items) == 0 {
		c.io.Println("Queue is empty")
		return nil
	}

	for _, item := range items {
		target := item.Operation.ObjectID
		if target == "" {
			target = "-"
		}
		c.io.Printf("%-36s  %-9s  %-7s  %-36s  retries=%d  queued=%s\n",
			item.ID, item.Operation.Type, item.Status, target, item.RetryCount, formatMillis(item.Timestamp))
	}
	return nil
}
