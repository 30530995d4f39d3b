package hub

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBroker_Channel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer func() { _ = client.Close() }()

	assert.Equal(t, "boardsync:board:planning", NewRedisBroker(client, "", setupTestLogger()).Channel("planning"))
	assert.Equal(t, "test:planning", NewRedisBroker(client, "test:", setupTestLogger()).Channel("planning"))
}

// Требует запущенный Redis: BOARDSYNC_TEST_REDIS_ADDR=localhost:6379
func TestRedisBroker_PublishRun(t *testing.T) {
	addr := os.Getenv("BOARDSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BOARDSYNC_TEST_REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	broker := NewRedisBroker(client, "boardsync-test:"+t.Name()+":", setupTestLogger())
	defer func() { _ = broker.Close() }()

	got := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = broker.Run(ctx, func(boardID string, payload []byte) {
			got <- boardID + ":" + string(payload)
		})
	}()

	// подписка асинхронна, публикуем до первой доставки
	require.Eventually(t, func() bool {
		_ = broker.Publish(ctx, "board-1", []byte("hello"))
		select {
		case msg := <-got:
			return assert.Equal(t, "board-1:hello", msg)
		default:
			return false
		}
	}, 2*time.Second, 50*time.Millisecond)
}
