package storage

import "errors"

// Common client storage errors
var (
	// ErrQueueNotFound indicates that no offline queue was saved for the board
	ErrQueueNotFound = errors.New("offline queue not found")

	// ErrSnapshotNotFound indicates that no board snapshot was saved
	ErrSnapshotNotFound = errors.New("board snapshot not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
