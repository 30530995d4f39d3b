package cli

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/iudanet/boardsync/internal/board"
	"github.com/iudanet/boardsync/internal/client/iocli"
	"github.com/iudanet/boardsync/internal/models"
)

// EventPrinter печатает изменения доски. Выключен, пока не запущен watch.
type EventPrinter struct {
	io      iocli.IO
	enabled atomic.Bool
}

var _ board.Listener = (*EventPrinter)(nil)

func NewEventPrinter(io iocli.IO) *EventPrinter {
	return &EventPrinter{io: io}
}

func (p *EventPrinter) Enable()  { p.enabled.Store(true) }
func (p *EventPrinter) Disable() { p.enabled.Store(false) }

func (p *EventPrinter) OnObjectAdded(obj *models.BoardObject) {
	if p.enabled.Load() {
		p.io.Printf("+ %s\n", describeObject(obj))
	}
}

func (p *EventPrinter) OnObjectUpdated(updated, _ *models.BoardObject) {
	if p.enabled.Load() {
		p.io.Printf("~ %s\n", describeObject(updated))
	}
}

func (p *EventPrinter) OnObjectDeleted(obj *models.BoardObject) {
	if p.enabled.Load() {
		p.io.Printf("- %s\n", obj.ID)
	}
}

func (p *EventPrinter) OnPartialRedraw(string, models.OpType) {}

func (p *EventPrinter) OnFullRedraw() {
	if p.enabled.Load() {
		p.io.Println("* board redrawn")
	}
}

func (p *EventPrinter) OnVersionMismatch(localVersion, serverVersion int64) {
	if p.enabled.Load() {
		p.io.Printf("! version mismatch: local %d, server %d, resyncing\n", localVersion, serverVersion)
	}
}

func (c *Cli) runWatch(ctx context.Context) error {
	if c.watcher == nil {
		return fmt.Errorf("realtime connection is not configured")
	}

	if c.events != nil {
		c.events.Enable()
		defer c.events.Disable()
	}

	c.io.Printf("=== Watching board %s ===\n", c.boardID)
	c.io.Println("Press Ctrl+C to stop")

	// догоняем пропущенное до подписки
	if _, err := c.syncService.Pull(ctx); err != nil {
		c.io.Printf("⚠ Initial pull failed: %v\n", err)
	}

	err := c.watcher.Run(ctx, c.queue)
	c.syncService.Persist(context.WithoutCancel(ctx))

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.io.Println("✓ Watch stopped")
		return nil
	}
	return err
}
