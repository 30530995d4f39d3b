package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/validation"
)

// геометрические поля, которые меняет transform
var transformFields = map[string]bool{
	"width":    true,
	"height":   true,
	"rotation": true,
	"scaleX":   true,
	"scaleY":   true,
}

func (c *Cli) runUpdate(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: update <id> key=value ...")
	}

	data, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	return c.modify(ctx, models.OpUpdate, args[0], data)
}

func (c *Cli) runMove(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: move <id> <x> <y>")
	}

	x, err := parseFloat("x", args[1])
	if err != nil {
		return err
	}
	y, err := parseFloat("y", args[2])
	if err != nil {
		return err
	}
	return c.modify(ctx, models.OpMove, args[0], map[string]any{"x": x, "y": y})
}

func (c *Cli) runTransform(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: transform <id> key=value ...")
	}

	data, err := parseFields(args[1:])
	if err != nil {
		return err
	}
	for key := range data {
		if !transformFields[key] {
			return fmt.Errorf("field %q cannot be transformed", key)
		}
	}
	return c.modify(ctx, models.OpTransform, args[0], data)
}

// modify отправляет изменение существующего объекта
func (c *Cli) modify(ctx context.Context, opType models.OpType, objectID string, data map[string]any) error {
	if err := validation.ValidateObjectID(objectID); err != nil {
		return err
	}
	if c.manager.GetObject(objectID) == nil {
		return fmt.Errorf("object %s not found", objectID)
	}

	op, err := c.submit(ctx, opType, objectID, data)
	if err != nil {
		return err
	}

	obj := c.manager.GetObject(objectID)
	if obj == nil || obj.UpdatedAt != op.Timestamp {
		// более новое изменение уже принято (LWW)
		c.io.Printf("⚠ Change to %s was superseded by a newer edit\n", objectID)
	} else {
		c.io.Printf("✓ Object %s %sd successfully!\n", objectID, verb(opType))
	}
	c.printQueued()
	return nil
}

func verb(opType models.OpType) string {
	switch opType {
	case models.OpMove:
		return "move"
	case models.OpTransform:
		return "transforme"
	default:
		return "update"
	}
}
