package storage

import (
	"context"

	"github.com/iudanet/boardsync/internal/models"
)

//go:generate moq -out queuestorage_mock.go . QueueStorage

// QueueStorage defines interface for persisting offline queues.
// Each board has its own independent queue.
type QueueStorage interface {
	// SaveQueue stores the whole queue of state.BoardID, replacing the previous one
	SaveQueue(ctx context.Context, state *models.QueueState) error

	// LoadQueue retrieves the saved queue of a board
	// Returns ErrQueueNotFound if nothing was saved for the board
	LoadQueue(ctx context.Context, boardID string) (*models.QueueState, error)

	// DeleteQueue removes the saved queue of a board
	DeleteQueue(ctx context.Context, boardID string) error
}
