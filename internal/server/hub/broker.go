package hub

import (
	"context"
	"errors"
)

// ErrBrokerClosed broker was closed
var ErrBrokerClosed = errors.New("broker closed")

// DeliverFunc доставляет сообщение локальным подписчикам доски
type DeliverFunc func(boardID string, payload []byte)

//go:generate moq -out broker_mock.go . Broker

// Broker разносит сообщения между экземплярами сервера.
// Каждый экземпляр публикует принятые операции и получает
// опубликованное всеми экземплярами через Run.
type Broker interface {
	Publish(ctx context.Context, boardID string, payload []byte) error
	Run(ctx context.Context, deliver DeliverFunc) error
	Close() error
}

type envelope struct {
	boardID string
	payload []byte
}

// MemoryBroker брокер в пределах одного процесса
type MemoryBroker struct {
	messages chan envelope
	done     chan struct{}
}

// NewMemoryBroker creates an in-process broker with the given buffer size
func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryBroker{
		messages: make(chan envelope, buffer),
		done:     make(chan struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, boardID string, payload []byte) error {
	select {
	case <-b.done:
		return ErrBrokerClosed
	default:
	}

	select {
	case b.messages <- envelope{boardID: boardID, payload: payload}:
		return nil
	case <-b.done:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Run(ctx context.Context, deliver DeliverFunc) error {
	for {
		select {
		case msg := <-b.messages:
			deliver(msg.boardID, msg.payload)
		case <-b.done:
			return ErrBrokerClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *MemoryBroker) Close() error {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
	return nil
}
