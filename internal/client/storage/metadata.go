package storage

import "context"

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for storing client replica metadata
type MetadataStorage interface {
	// SaveLastSyncVersion saves the server version of the last successful sync of a board
	SaveLastSyncVersion(ctx context.Context, boardID string, version int64) error

	// GetLastSyncVersion retrieves the server version of the last successful sync
	// Returns 0 if the board has never been synced
	GetLastSyncVersion(ctx context.Context, boardID string) (int64, error)

	// SaveNodeID saves the replica identifier
	SaveNodeID(ctx context.Context, nodeID string) error

	// GetNodeID retrieves the replica identifier
	// Returns empty string if it was never saved
	GetNodeID(ctx context.Context) (string, error)

	// SaveClock saves a vector clock snapshot of a board replica
	SaveClock(ctx context.Context, boardID string, clock map[string]int64) error

	// GetClock retrieves a vector clock snapshot
	// Returns empty map if nothing was saved
	GetClock(ctx context.Context, boardID string) (map[string]int64, error)
}
