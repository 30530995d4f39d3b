package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRegistrarClosed возвращается при регистрации после Close
var ErrRegistrarClosed = errors.New("background sync registrar is closed")

// BackoffRegistrar выполняет зарегистрированные задачи в фоне, повторяя
// их с экспоненциальной задержкой до успеха. Повторная регистрация тега,
// задача которого еще выполняется, объединяется с ней.
type BackoffRegistrar struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
	running    map[string]struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
}

var _ BackgroundSyncRegistrar = (*BackoffRegistrar)(nil)

// NewBackoffRegistrar создает регистратор. maxElapsed ограничивает общее
// время повторов одной задачи (0 - без ограничения).
func NewBackoffRegistrar(logger *slog.Logger, maxElapsed time.Duration) *BackoffRegistrar {
	return NewBackoffRegistrarWith(logger, func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = maxElapsed
		return b
	})
}

// NewBackoffRegistrarWith создает регистратор с собственной стратегией задержек.
func NewBackoffRegistrarWith(logger *slog.Logger, newBackOff func() backoff.BackOff) *BackoffRegistrar {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &BackoffRegistrar{
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		newBackOff: newBackOff,
		running:    make(map[string]struct{}),
	}
}

// Register запускает задачу в фоне. Время жизни задачи ограничено
// регистратором, а не ctx вызывающего.
func (r *BackoffRegistrar) Register(ctx context.Context, tag string, task func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return ErrRegistrarClosed
	}

	if _, ok := r.running[tag]; ok {
		r.logger.Debug("Background sync already registered", "tag", tag)
		return nil
	}
	r.running[tag] = struct{}{}

	r.wg.Add(1)
	go r.run(tag, task)

	return nil
}

func (r *BackoffRegistrar) run(tag string, task func(context.Context) error) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.running, tag)
		r.mu.Unlock()
	}()

	attempt := 0
	operation := func() error {
		attempt++
		return task(r.ctx)
	}

	notify := func(err error, next time.Duration) {
		r.logger.Warn("Background sync attempt failed",
			"tag", tag,
			"attempt", attempt,
			"retry_in", next,
			"error", err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(r.newBackOff(), r.ctx), notify); err != nil {
		r.logger.Error("Background sync gave up", "tag", tag, "attempts", attempt, "error", err)
		return
	}

	r.logger.Debug("Background sync completed", "tag", tag, "attempts", attempt)
}

// Wait ожидает завершения всех запущенных задач.
func (r *BackoffRegistrar) Wait() {
	r.wg.Wait()
}

// Close отменяет выполняющиеся задачи и ожидает их завершения.
func (r *BackoffRegistrar) Close() {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
}
