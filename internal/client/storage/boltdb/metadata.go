package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/boardsync/internal/client/storage"
)

const (
	keyLastSyncVersionPrefix = "last_sync_version:"
	keyClockPrefix           = "clock:"
	keyNodeID                = "node_id"
)

var _ storage.MetadataStorage = (*Storage)(nil)

// SaveLastSyncVersion saves the server version of the last successful sync of a board
func (s *Storage) SaveLastSyncVersion(ctx context.Context, boardID string, version int64) error {
	// Конвертируем int64 в bytes
	versionBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(versionBytes, uint64(version))

	if err := s.putMetadata([]byte(keyLastSyncVersionPrefix+boardID), versionBytes); err != nil {
		return fmt.Errorf("failed to save last sync version: %w", err)
	}
	return nil
}

// GetLastSyncVersion retrieves the server version of the last successful sync
// Returns 0 if the board has never been synced
func (s *Storage) GetLastSyncVersion(ctx context.Context, boardID string) (int64, error) {
	versionBytes, err := s.getMetadata([]byte(keyLastSyncVersionPrefix + boardID))
	if err != nil {
		return 0, fmt.Errorf("failed to get last sync version: %w", err)
	}

	// Первая синхронизация
	if len(versionBytes) != 8 {
		return 0, nil
	}

	return int64(binary.BigEndian.Uint64(versionBytes)), nil
}

// SaveNodeID saves the replica identifier
func (s *Storage) SaveNodeID(ctx context.Context, nodeID string) error {
	if err := s.putMetadata([]byte(keyNodeID), []byte(nodeID)); err != nil {
		return fmt.Errorf("failed to save node id: %w", err)
	}
	return nil
}

// GetNodeID retrieves the replica identifier
func (s *Storage) GetNodeID(ctx context.Context) (string, error) {
	data, err := s.getMetadata([]byte(keyNodeID))
	if err != nil {
		return "", fmt.Errorf("failed to get node id: %w", err)
	}
	return string(data), nil
}

// SaveClock saves a vector clock snapshot of a board replica
func (s *Storage) SaveClock(ctx context.Context, boardID string, clock map[string]int64) error {
	data, err := json.Marshal(clock)
	if err != nil {
		return fmt.Errorf("failed to marshal clock: %w", err)
	}

	if err := s.putMetadata([]byte(keyClockPrefix+boardID), data); err != nil {
		return fmt.Errorf("failed to save clock: %w", err)
	}
	return nil
}

// GetClock retrieves a vector clock snapshot
func (s *Storage) GetClock(ctx context.Context, boardID string) (map[string]int64, error) {
	data, err := s.getMetadata([]byte(keyClockPrefix + boardID))
	if err != nil {
		return nil, fmt.Errorf("failed to get clock: %w", err)
	}

	clock := make(map[string]int64)
	if data == nil {
		return clock, nil
	}

	if err := json.Unmarshal(data, &clock); err != nil {
		return nil, fmt.Errorf("failed to unmarshal clock: %w", err)
	}
	return clock, nil
}

func (s *Storage) putMetadata(key, value []byte) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}
		return bucket.Put(key, value)
	})
}

// getMetadata возвращает копию значения или nil, если ключа нет
func (s *Storage) getMetadata(key []byte) ([]byte, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		// Значение валидно только внутри транзакции
		if v := bucket.Get(key); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})

	return value, err
}
