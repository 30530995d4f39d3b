package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/models"
)

func createTestQueueState(t *testing.T, boardID string, objectIDs ...string) *models.QueueState {
	t.Helper()

	state := &models.QueueState{BoardID: boardID, SavedAt: 1700000000000}
	for _, id := range objectIDs {
		op, err := models.NewOperation(models.OpAdd, id, map[string]any{"color": "red"},
			models.WithTimestamp(1000),
			models.WithUserID("node1"),
			models.WithVectorClock(map[string]int64{"node1": 1}),
		)
		require.NoError(t, err)

		state.Queue = append(state.Queue, &models.QueueItem{
			ID:        op.ID,
			Operation: op,
			Status:    models.QueueStatusPending,
			Timestamp: 1000,
		})
	}
	return state
}

func TestSaveAndLoadQueue(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	state := createTestQueueState(t, "board-1", "a", "b")
	state.Queue[1].Status = models.QueueStatusFailed
	state.Queue[1].RetryCount = 2

	require.NoError(t, store.SaveQueue(ctx, state))

	loaded, err := store.LoadQueue(ctx, "board-1")
	require.NoError(t, err)

	assert.Equal(t, "board-1", loaded.BoardID)
	assert.Equal(t, state.SavedAt, loaded.SavedAt)
	require.Len(t, loaded.Queue, 2)
	assert.Equal(t, state.Queue[0].ID, loaded.Queue[0].ID)
	assert.Equal(t, "a", loaded.Queue[0].Operation.ObjectID)
	assert.Equal(t, models.QueueStatusFailed, loaded.Queue[1].Status)
	assert.Equal(t, 2, loaded.Queue[1].RetryCount)
}

func TestSaveQueue_Overwrites(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.SaveQueue(ctx, createTestQueueState(t, "board-1", "a", "b")))
	require.NoError(t, store.SaveQueue(ctx, createTestQueueState(t, "board-1", "c")))

	loaded, err := store.LoadQueue(ctx, "board-1")
	require.NoError(t, err)
	require.Len(t, loaded.Queue, 1)
	assert.Equal(t, "c", loaded.Queue[0].Operation.ObjectID)
}

func TestLoadQueue_NotFound(t *testing.T) {
	store := createTestStorage(t)

	loaded, err := store.LoadQueue(context.Background(), "unknown")
	assert.ErrorIs(t, err, storage.ErrQueueNotFound)
	assert.Nil(t, loaded)
}

func TestQueue_BoardIsolation(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.SaveQueue(ctx, createTestQueueState(t, "board-1", "a")))
	require.NoError(t, store.SaveQueue(ctx, createTestQueueState(t, "board-2", "x", "y")))

	first, err := store.LoadQueue(ctx, "board-1")
	require.NoError(t, err)
	second, err := store.LoadQueue(ctx, "board-2")
	require.NoError(t, err)

	assert.Len(t, first.Queue, 1)
	assert.Len(t, second.Queue, 2)
}

func TestQueue_KeyFormat(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.SaveQueue(ctx, createTestQueueState(t, "board-1", "a")))

	err := store.db.View(func(tx *bbolt.Tx) error {
		assert.NotNil(t, tx.Bucket([]byte("offline_queue")).Get([]byte("board_offline_queue:board-1")))
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteQueue(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.SaveQueue(ctx, createTestQueueState(t, "board-1", "a")))
	require.NoError(t, store.DeleteQueue(ctx, "board-1"))

	_, err := store.LoadQueue(ctx, "board-1")
	assert.ErrorIs(t, err, storage.ErrQueueNotFound)

	// Удаление отсутствующей очереди не является ошибкой
	assert.NoError(t, store.DeleteQueue(ctx, "board-1"))
}

func TestQueue_Closed(t *testing.T) {
	ctx := context.Background()
	store := &Storage{}

	assert.ErrorIs(t, store.SaveQueue(ctx, &models.QueueState{BoardID: "b"}), storage.ErrStorageClosed)
	_, err := store.LoadQueue(ctx, "b")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.DeleteQueue(ctx, "b"), storage.ErrStorageClosed)
}
