package hub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultChannelPrefix префикс каналов pub/sub для досок
const DefaultChannelPrefix = "boardsync:board:"

// RedisBroker разносит сообщения между экземплярами сервера через Redis pub/sub
type RedisBroker struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

// NewRedisBroker creates a broker on top of an existing redis client
func NewRedisBroker(client *redis.Client, prefix string, logger *slog.Logger) *RedisBroker {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisBroker{client: client, prefix: prefix, logger: logger}
}

// Channel возвращает имя канала доски
func (b *RedisBroker) Channel(boardID string) string {
	return b.prefix + boardID
}

func (b *RedisBroker) Publish(ctx context.Context, boardID string, payload []byte) error {
	if err := b.client.Publish(ctx, b.Channel(boardID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Run подписывается на каналы всех досок и доставляет сообщения до отмены ctx
func (b *RedisBroker) Run(ctx context.Context, deliver DeliverFunc) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Warn("Failed to close redis subscription", "error", err)
		}
	}()

	// ждем подтверждения подписки, чтобы не потерять первые сообщения
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to redis: %w", err)
	}
	b.logger.Info("Subscribed to redis", "pattern", b.prefix+"*")

	messages := pubsub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return ErrBrokerClosed
			}
			deliver(strings.TrimPrefix(msg.Channel, b.prefix), []byte(msg.Payload))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
