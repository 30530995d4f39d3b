package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/iudanet/boardsync/internal/models"
)

var objectTypes = []string{
	models.ObjectTypeStroke,
	models.ObjectTypeShape,
	models.ObjectTypeText,
	models.ObjectTypeImage,
	models.ObjectTypeSticky,
}

func (c *Cli) runAdd(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: add <type> [key=value ...]")
	}

	objectType := args[0]
	if !slices.Contains(objectTypes, objectType) {
		return fmt.Errorf("unknown object type %q (supported: %v)", objectType, objectTypes)
	}

	data, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	data["type"] = objectType

	objectID := uuid.New().String()
	op, err := c.submit(ctx, models.OpAdd, objectID, data)
	if err != nil {
		return err
	}

	c.io.Println("✓ Object added successfully!")
	c.io.Printf("  ID:        %s\n", objectID)
	c.io.Printf("  Operation: %s\n", op.ID)
	c.printQueued()
	return nil
}

// submit создает локальную операцию, ставит ее в офлайн-очередь
// и сохраняет состояние доски.
func (c *Cli) submit(ctx context.Context, opType models.OpType, objectID string, data map[string]any) (*models.Operation, error) {
	op, err := c.manager.CreateOperation(opType, objectID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation: %w", err)
	}

	c.queue.Enqueue(op)
	c.syncService.Persist(ctx)
	return op, nil
}

func (c *Cli) printQueued() {
	stats := c.queue.Stats()
	c.io.Printf("  Queued for sync: %d pending\n", stats.Pending)
}
