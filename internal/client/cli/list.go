package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/boardsync/internal/models"
)

func (c *Cli) runList(_ context.Context) error {
	c.printObjects(fmt.Sprintf("=== Board %s ===", c.boardID), c.manager.GetObjects())
	return nil
}

func (c *Cli) runRegion(_ context.Context, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: region <x> <y> <w> <h>")
	}

	var bounds [4]float64
	for i, name := range []string{"x", "y", "width", "height"} {
		v, err := parseFloat(name, args[i])
		if err != nil {
			return err
		}
		bounds[i] = v
	}
	if bounds[2] < 0 || bounds[3] < 0 {
		return fmt.Errorf("region size must not be negative")
	}

	objects := c.manager.GetObjectsInRegion(bounds[0], bounds[1], bounds[2], bounds[3])
	c.printObjects(fmt.Sprintf("=== Region (%g, %g) %gx%g ===", bounds[0], bounds[1], bounds[2], bounds[3]), objects)
	return nil
}

func (c *Cli) printObjects(header string, objects []*models.BoardObject) {
	c.io.Println(header)
	if len(objects) == 0 {
		c.io.Println("No objects found")
		return
	}

	for _, obj := range objects {
		c.io.Println(describeObject(obj))
	}
	c.io.Println()
	c.io.Printf("Total: %d\n", len(objects))
}
