package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/models"
)

var _ storage.QueueStorage = (*Storage)(nil)

// queueKeyPrefix префикс ключа очереди доски
const queueKeyPrefix = "board_offline_queue:"

func queueKey(boardID string) []byte {
	return []byte(queueKeyPrefix + boardID)
}

// SaveQueue stores the whole queue of a board in BoltDB
func (s *Storage) SaveQueue(ctx context.Context, state *models.QueueState) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal queue state: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketQueue)
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}

		if err := bucket.Put(queueKey(state.BoardID), data); err != nil {
			return fmt.Errorf("failed to save queue: %w", err)
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// LoadQueue retrieves the saved queue of a board
func (s *Storage) LoadQueue(ctx context.Context, boardID string) (*models.QueueState, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var state *models.QueueState

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return storage.ErrQueueNotFound
		}

		data := bucket.Get(queueKey(boardID))
		if data == nil {
			return storage.ErrQueueNotFound
		}

		state = &models.QueueState{}
		if err := json.Unmarshal(data, state); err != nil {
			return fmt.Errorf("failed to unmarshal queue state: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return state, nil
}

// DeleteQueue removes the saved queue of a board
func (s *Storage) DeleteQueue(ctx context.Context, boardID string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(queueKey(boardID))
	})

	if err != nil {
		return fmt.Errorf("failed to delete queue: %w", err)
	}

	return nil
}
