package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/models"
)

func TestSaveAndLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	snapshot := &models.Snapshot{
		Version: 7,
		Objects: []*models.BoardObject{
			{ID: "s1", Data: map[string]any{"color": "red", "x": 10.0}, CreatedAt: 1000, UpdatedAt: 2000, CreatedBy: "node1", UpdatedBy: "node2"},
		},
		Tombstones: []string{"s2"},
	}

	require.NoError(t, store.SaveSnapshot(ctx, "board-1", snapshot))

	loaded, err := store.LoadSnapshot(ctx, "board-1")
	require.NoError(t, err)

	assert.Equal(t, int64(7), loaded.Version)
	require.Len(t, loaded.Objects, 1)
	assert.Equal(t, "red", loaded.Objects[0].String("color"))
	assert.Equal(t, 10.0, loaded.Objects[0].Number("x"))
	assert.Equal(t, int64(2000), loaded.Objects[0].UpdatedAt)
	assert.Equal(t, "node2", loaded.Objects[0].UpdatedBy)
	assert.Equal(t, []string{"s2"}, loaded.Tombstones)
}

func TestLoadSnapshot_NotFound(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.LoadSnapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
}

func TestSnapshot_Closed(t *testing.T) {
	store := &Storage{}

	assert.ErrorIs(t, store.SaveSnapshot(context.Background(), "b", &models.Snapshot{}), storage.ErrStorageClosed)
	_, err := store.LoadSnapshot(context.Background(), "b")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
