package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/boardsync/internal/validation"
)

func (c *Cli) runGet(_ context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <id>")
	}

	objectID := args[0]
	if err := validation.ValidateObjectID(objectID); err != nil {
		return err
	}

	obj := c.manager.GetObject(objectID)
	if obj == nil {
		if c.manager.IsTombstoned(objectID) {
			return fmt.Errorf("object %s was deleted", objectID)
		}
		return fmt.Errorf("object %s not found", objectID)
	}

	c.io.Printf("=== Object %s ===\n", obj.ID)
	c.io.Printf("Created:    %s by %s\n", formatMillis(obj.CreatedAt), obj.CreatedBy)
	c.io.Printf("Updated:    %s by %s\n", formatMillis(obj.UpdatedAt), obj.UpdatedBy)
	c.io.Println("Fields:")
	for _, line := range formatFields(obj.Data) {
		c.io.Println(line)
	}
	return nil
}
