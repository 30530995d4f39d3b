package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/internal/models"
)

// SkipReason причина, по которой Sync ничего не отправил
type SkipReason string

// SkipReason константы
const (
	SkipNone       SkipReason = ""
	SkipInProgress SkipReason = "in_progress"
	SkipOffline    SkipReason = "offline"
	SkipEmpty      SkipReason = "empty"
)

// SyncResult contains sync attempt results
type SyncResult struct {
	Skipped SkipReason // причина пропуска, пусто если пачка отправлялась
	Synced  int        // количество доставленных операций
	Failed  int        // количество операций, помеченных failed
}

// Stats статистика очереди
type Stats struct {
	Total   int
	Pending int
	Failed  int
	Syncing bool
	Online  bool
}

// Option настраивает необязательные зависимости очереди
type Option func(*Queue)

// WithApplier задает реплику, к которой операции повторно применяются перед отправкой.
func WithApplier(applier Applier) Option {
	return func(q *Queue) { q.applier = applier }
}

// WithNetworkStatus задает источник состояния сети. По умолчанию сеть считается доступной.
func WithNetworkStatus(network NetworkStatus) Option {
	return func(q *Queue) { q.network = network }
}

// WithRegistrar задает регистратор фоновой синхронизации.
func WithRegistrar(registrar BackgroundSyncRegistrar) Option {
	return func(q *Queue) { q.registrar = registrar }
}

// WithObserver задает получателя уведомлений.
func WithObserver(observer Observer) Option {
	return func(q *Queue) { q.observer = observer }
}

// Queue офлайн-очередь операций одной доски.
// Хранит операции до подтверждения доставки, переживает перезапуск
// через storage.QueueStorage и повторяет отправку после восстановления сети.
type Queue struct {
	store     storage.QueueStorage
	transmit  Transmitter
	applier   Applier
	network   NetworkStatus
	registrar BackgroundSyncRegistrar
	observer  Observer
	logger    *slog.Logger
	timer     *time.Timer
	items     []*models.QueueItem
	cfg       Config
	mu        sync.Mutex
	syncing   atomic.Bool // единственная синхронизация в полете
	closed    bool
}

// New создает очередь и загружает сохраненное состояние текущей доски.
// Nil transmit означает, что доставка всегда успешна (автономный режим).
func New(cfg Config, store storage.QueueStorage, transmit Transmitter, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		store:    store,
		transmit: transmit,
		network:  alwaysOnline{},
		observer: ObserverFuncs{},
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.mu.Lock()
	q.loadLocked()
	q.mu.Unlock()

	return q
}

// BoardID возвращает текущую доску очереди.
func (q *Queue) BoardID() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.cfg.BoardID
}

// Enqueue добавляет операцию в очередь и возвращает идентификатор элемента.
// При переполнении вытесняется самый старый элемент. Если сеть доступна
// и включен AutoSync, планируется отложенная синхронизация.
func (q *Queue) Enqueue(op *models.Operation) string {
	if op == nil {
		return ""
	}

	q.mu.Lock()

	if len(q.items) >= q.cfg.MaxQueueSize {
		evicted := q.items[0]
		q.items = slices.Delete(q.items, 0, 1)
		q.logger.Warn("Offline queue is full, dropping oldest operation",
			"board_id", q.cfg.BoardID,
			"item_id", evicted.ID,
			"max_size", q.cfg.MaxQueueSize)
	}

	id := op.ID
	if id == "" {
		id = uuid.New().String()
	}

	q.items = append(q.items, &models.QueueItem{
		ID:        id,
		Operation: op.Clone(),
		Status:    models.QueueStatusPending,
		Timestamp: time.Now().UnixMilli(),
	})

	q.saveLocked()
	items := q.cloneItemsLocked(nil)

	if q.cfg.AutoSync && q.network.Online() {
		q.scheduleSyncLocked()
	}
	q.mu.Unlock()

	q.observer.OnQueueChange(items)
	return id
}

// Dequeue удаляет элемент по идентификатору. Возвращает false, если элемента нет.
func (q *Queue) Dequeue(id string) bool {
	q.mu.Lock()

	idx := slices.IndexFunc(q.items, func(item *models.QueueItem) bool { return item.ID == id })
	if idx < 0 {
		q.mu.Unlock()
		return false
	}

	q.items = slices.Delete(q.items, idx, idx+1)
	q.saveLocked()
	items := q.cloneItemsLocked(nil)
	q.mu.Unlock()

	q.observer.OnQueueChange(items)
	return true
}

// Sync отправляет все ожидающие операции одной пачкой.
// Одновременно выполняется не более одной синхронизации: пересекающийся
// вызов, отсутствие сети или пустая очередь дают SyncResult с Skipped.
// Возвращаемая ошибка - ошибка доставки; элементы пачки при этом
// помечаются failed и остаются в очереди.
func (q *Queue) Sync(ctx context.Context) (*SyncResult, error) {
	if !q.syncing.CompareAndSwap(false, true) {
		q.logger.Debug("Sync already in progress", "board_id", q.BoardID())
		return &SyncResult{Skipped: SkipInProgress}, nil
	}
	defer q.syncing.Store(false)

	if !q.network.Online() {
		q.logger.Debug("Offline, skipping sync", "board_id", q.BoardID())
		return &SyncResult{Skipped: SkipOffline}, nil
	}

	q.mu.Lock()
	batchIDs := make(map[string]struct{})
	for _, item := range q.items {
		if item.Status == models.QueueStatusPending {
			item.Status = models.QueueStatusSyncing
			batchIDs[item.ID] = struct{}{}
		}
	}

	if len(batchIDs) == 0 {
		q.mu.Unlock()
		q.logger.Debug("No pending operations", "board_id", q.BoardID())
		return &SyncResult{Skipped: SkipEmpty}, nil
	}

	q.saveLocked()
	batch := q.cloneItemsLocked(batchIDs)
	boardID := q.cfg.BoardID
	q.mu.Unlock()

	q.observer.OnSync(batch)

	ops := make([]*models.Operation, 0, len(batch))
	for _, item := range batch {
		if item.Operation != nil {
			ops = append(ops, item.Operation)
		}
	}

	err := q.deliver(ctx, ops)
	if err != nil {
		return q.failBatch(boardID, batchIDs, err)
	}

	q.mu.Lock()
	for _, item := range q.items {
		if _, ok := batchIDs[item.ID]; ok {
			item.Status = models.QueueStatusSynced
		}
	}
	q.items = slices.DeleteFunc(q.items, func(item *models.QueueItem) bool {
		_, ok := batchIDs[item.ID]
		return ok
	})
	q.saveLocked()
	items := q.cloneItemsLocked(nil)
	q.mu.Unlock()

	q.logger.Info("Synced offline operations", "board_id", boardID, "count", len(batch))

	q.observer.OnSyncComplete(ops)
	q.observer.OnQueueChange(items)

	return &SyncResult{Synced: len(batch)}, nil
}

// deliver повторно применяет операции к реплике и передает их удаленной стороне
func (q *Queue) deliver(ctx context.Context, ops []*models.Operation) error {
	if q.applier != nil {
		for _, op := range ops {
			q.applier.ApplyOperation(op, true)
		}
	}

	if q.transmit == nil {
		return nil
	}

	payload := make([]json.RawMessage, 0, len(ops))
	for _, op := range ops {
		data, err := op.ToJSON()
		if err != nil {
			return err
		}
		payload = append(payload, data)
	}

	return q.transmit(ctx, payload)
}

func (q *Queue) failBatch(boardID string, batchIDs map[string]struct{}, cause error) (*SyncResult, error) {
	q.mu.Lock()
	failedIDs := make(map[string]struct{}, len(batchIDs))
	for _, item := range q.items {
		if _, ok := batchIDs[item.ID]; ok && item.Status == models.QueueStatusSyncing {
			item.Status = models.QueueStatusFailed
			item.RetryCount++
			failedIDs[item.ID] = struct{}{}
		}
	}
	q.saveLocked()
	failed := q.cloneItemsLocked(failedIDs)
	items := q.cloneItemsLocked(nil)
	q.mu.Unlock()

	q.logger.Error("Offline queue sync failed",
		"board_id", boardID,
		"count", len(failed),
		"error", cause)

	q.observer.OnSyncError(cause, failed)
	q.observer.OnQueueChange(items)

	return &SyncResult{Failed: len(failed)}, fmt.Errorf("failed to transmit operations: %w", cause)
}

// RetryFailed переводит failed элементы обратно в pending и запускает Sync.
func (q *Queue) RetryFailed(ctx context.Context) (*SyncResult, error) {
	q.mu.Lock()
	reset := 0
	for _, item := range q.items {
		if item.Status == models.QueueStatusFailed {
			item.Status = models.QueueStatusPending
			reset++
		}
	}
	q.saveLocked()
	q.mu.Unlock()

	if reset > 0 {
		q.logger.Info("Retrying failed operations", "board_id", q.BoardID(), "count", reset)
	}

	return q.Sync(ctx)
}

// HandleOnline реагирует на восстановление сети: регистрирует фоновую
// синхронизацию, а при ее недоступности синхронизирует сразу.
func (q *Queue) HandleOnline(ctx context.Context) {
	q.logger.Info("Network online, syncing", "board_id", q.BoardID())

	if q.registrar != nil {
		err := q.registrar.Register(ctx, q.cfg.BackgroundSyncTag, func(ctx context.Context) error {
			_, err := q.RetryFailed(ctx)
			return err
		})
		if err == nil {
			return
		}
		q.logger.Warn("Background sync registration failed, syncing immediately", "error", err)
	}

	if _, err := q.Sync(ctx); err != nil {
		q.logger.Warn("Sync after reconnect failed", "error", err)
	}
}

// HandleOffline отменяет запланированную синхронизацию.
// Уже выполняющаяся доставка не прерывается.
func (q *Queue) HandleOffline() {
	q.logger.Info("Network offline", "board_id", q.BoardID())

	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopTimerLocked()
}

// Pending возвращает копии элементов со статусом pending.
func (q *Queue) Pending() []*models.QueueItem {
	return q.filter(models.QueueStatusPending)
}

// Failed возвращает копии элементов со статусом failed.
func (q *Queue) Failed() []*models.QueueItem {
	return q.filter(models.QueueStatusFailed)
}

// Items возвращает копии всех элементов в порядке постановки.
func (q *Queue) Items() []*models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.cloneItemsLocked(nil)
}

// Clear удаляет все элементы очереди.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.saveLocked()
	q.mu.Unlock()

	q.observer.OnQueueChange(nil)
}

// ClearSynced удаляет элементы со статусом synced.
func (q *Queue) ClearSynced() {
	q.mu.Lock()
	q.items = slices.DeleteFunc(q.items, func(item *models.QueueItem) bool {
		return item.Status == models.QueueStatusSynced
	})
	q.saveLocked()
	items := q.cloneItemsLocked(nil)
	q.mu.Unlock()

	q.observer.OnQueueChange(items)
}

// Stats возвращает статистику очереди.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		Total:   len(q.items),
		Syncing: q.syncing.Load(),
		Online:  q.network.Online(),
	}
	for _, item := range q.items {
		switch item.Status {
		case models.QueueStatusPending:
			stats.Pending++
		case models.QueueStatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// SetBoardID переключает очередь на другую доску и загружает ее сохраненное
// состояние. Очередь предыдущей доски остается в хранилище.
func (q *Queue) SetBoardID(boardID string) {
	q.mu.Lock()

	if q.cfg.BoardID == boardID {
		q.mu.Unlock()
		return
	}

	q.stopTimerLocked()
	q.cfg.BoardID = boardID
	q.items = nil
	q.loadLocked()
	items := q.cloneItemsLocked(nil)
	q.mu.Unlock()

	q.observer.OnQueueChange(items)
}

// Close останавливает таймер синхронизации. Сохраненное состояние не удаляется.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.stopTimerLocked()
}

func (q *Queue) filter(status models.QueueStatus) []*models.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []*models.QueueItem
	for _, item := range q.items {
		if item.Status == status {
			result = append(result, item.Clone())
		}
	}
	return result
}

func (q *Queue) scheduleSyncLocked() {
	if q.closed {
		return
	}

	q.stopTimerLocked()
	q.timer = time.AfterFunc(q.cfg.SyncDebounce, func() {
		if _, err := q.Sync(context.Background()); err != nil {
			q.logger.Warn("Scheduled sync failed", "error", err)
		}
	})
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// cloneItemsLocked копирует элементы; ids == nil означает все элементы
func (q *Queue) cloneItemsLocked(ids map[string]struct{}) []*models.QueueItem {
	result := make([]*models.QueueItem, 0, len(q.items))
	for _, item := range q.items {
		if ids != nil {
			if _, ok := ids[item.ID]; !ok {
				continue
			}
		}
		result = append(result, item.Clone())
	}
	return result
}

// saveLocked сохраняет очередь. Ошибки хранилища логируются и не прерывают работу.
func (q *Queue) saveLocked() {
	if q.store == nil {
		return
	}

	state := &models.QueueState{
		BoardID: q.cfg.BoardID,
		Queue:   q.items,
		SavedAt: time.Now().UnixMilli(),
	}
	if err := q.store.SaveQueue(context.Background(), state); err != nil {
		q.logger.Error("Failed to save offline queue", "board_id", q.cfg.BoardID, "error", err)
	}
}

// loadLocked загружает очередь текущей доски. Элементы, застрявшие
// в syncing после аварийного завершения, возвращаются в pending.
func (q *Queue) loadLocked() {
	if q.store == nil {
		return
	}

	state, err := q.store.LoadQueue(context.Background(), q.cfg.BoardID)
	if err != nil {
		if !errors.Is(err, storage.ErrQueueNotFound) {
			q.logger.Error("Failed to load offline queue", "board_id", q.cfg.BoardID, "error", err)
		}
		return
	}

	if state.BoardID != q.cfg.BoardID {
		return
	}

	q.items = make([]*models.QueueItem, 0, len(state.Queue))
	for _, item := range state.Queue {
		if item == nil {
			continue
		}
		if item.Status == models.QueueStatusSyncing {
			item.Status = models.QueueStatusPending
		}
		q.items = append(q.items, item)
	}

	q.logger.Info("Loaded offline queue", "board_id", q.cfg.BoardID, "count", len(q.items))
}
