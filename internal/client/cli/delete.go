package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/validation"
)

func (c *Cli) runDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <id>")
	}

	objectID := args[0]
	if err := validation.ValidateObjectID(objectID); err != nil {
		return err
	}
	if c.manager.GetObject(objectID) == nil {
		return fmt.Errorf("object %s not found", objectID)
	}

	if _, err := c.submit(ctx, models.OpDelete, objectID, nil); err != nil {
		return err
	}

	c.io.Printf("✓ Object %s deleted successfully!\n", objectID)
	c.printQueued()
	return nil
}

func (c *Cli) runClear(ctx context.Context, args []string) error {
	confirmed := len(args) == 1 && (args[0] == "--yes" || args[0] == "-y")
	if !confirmed {
		ok, err := c.io.Confirm(fmt.Sprintf("Remove all %d objects from board %s?", len(c.manager.GetObjects()), c.boardID))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if !ok {
			c.io.Println("Cancelled")
			return nil
		}
	}

	if _, err := c.submit(ctx, models.OpClear, "", nil); err != nil {
		return err
	}

	c.io.Printf("✓ Board %s cleared successfully!\n", c.boardID)
	c.printQueued()
	return nil
}
