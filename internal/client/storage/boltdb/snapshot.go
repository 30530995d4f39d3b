package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/models"
)

var _ storage.SnapshotStorage = (*Storage)(nil)

// SaveSnapshot stores or replaces a board snapshot
func (s *Storage) SaveSnapshot(ctx context.Context, boardID string, snapshot *models.Snapshot) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return bucket.Put([]byte(boardID), data)
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// LoadSnapshot retrieves a board snapshot
func (s *Storage) LoadSnapshot(ctx context.Context, boardID string) (*models.Snapshot, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var snapshot *models.Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		if bucket == nil {
			return storage.ErrSnapshotNotFound
		}

		data := bucket.Get([]byte(boardID))
		if data == nil {
			return storage.ErrSnapshotNotFound
		}

		snapshot = &models.Snapshot{}
		if err := json.Unmarshal(data, snapshot); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return snapshot, nil
}
