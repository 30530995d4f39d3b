package storage

import (
	"context"

	"github.com/iudanet/boardsync/internal/models"
)

//go:generate moq -out snapshotstorage_mock.go . SnapshotStorage

// SnapshotStorage defines interface for storing the last known board state,
// so that a replica can restore the board after restart without a server.
type SnapshotStorage interface {
	// SaveSnapshot stores or replaces a board snapshot
	SaveSnapshot(ctx context.Context, boardID string, snapshot *models.Snapshot) error

	// LoadSnapshot retrieves a board snapshot
	// Returns ErrSnapshotNotFound if the board has never been saved
	LoadSnapshot(ctx context.Context, boardID string) (*models.Snapshot, error)
}
