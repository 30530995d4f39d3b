package queue

import (
	"context"
	"encoding/json"

	"github.com/iudanet/boardsync/internal/models"
)

//go:generate moq -out ports_mock.go . Applier NetworkStatus BackgroundSyncRegistrar Observer

// Applier применяет операции к локальной реплике (board.Manager)
type Applier interface {
	ApplyOperation(op *models.Operation, isLocal bool) bool
}

// Transmitter отправляет пачку сериализованных операций удаленной стороне.
// Ошибка означает, что ни одна операция пачки не считается доставленной.
type Transmitter func(ctx context.Context, ops []json.RawMessage) error

// NetworkStatus сообщает о доступности сети
type NetworkStatus interface {
	Online() bool
}

// BackgroundSyncRegistrar регистрирует фоновую задачу синхронизации под тегом.
// Ошибка регистрации приводит к немедленной синхронизации.
type BackgroundSyncRegistrar interface {
	Register(ctx context.Context, tag string, task func(context.Context) error) error
}

// Observer получает уведомления о жизненном цикле очереди.
// Все методы вызываются без удержания блокировки очереди.
type Observer interface {
	// OnSync вызывается перед отправкой пачки
	OnSync(items []*models.QueueItem)

	// OnSyncComplete вызывается после успешной доставки пачки
	OnSyncComplete(ops []*models.Operation)

	// OnSyncError вызывается после неудачной доставки
	OnSyncError(err error, items []*models.QueueItem)

	// OnQueueChange вызывается после любого структурного изменения очереди
	OnQueueChange(items []*models.QueueItem)
}

// ObserverFuncs адаптирует набор функций к Observer. Незаданные функции игнорируются.
type ObserverFuncs struct {
	Sync         func(items []*models.QueueItem)
	SyncComplete func(ops []*models.Operation)
	SyncError    func(err error, items []*models.QueueItem)
	QueueChange  func(items []*models.QueueItem)
}

var _ Observer = ObserverFuncs{}

func (o ObserverFuncs) OnSync(items []*models.QueueItem) {
	if o.Sync != nil {
		o.Sync(items)
	}
}

func (o ObserverFuncs) OnSyncComplete(ops []*models.Operation) {
	if o.SyncComplete != nil {
		o.SyncComplete(ops)
	}
}

func (o ObserverFuncs) OnSyncError(err error, items []*models.QueueItem) {
	if o.SyncError != nil {
		o.SyncError(err, items)
	}
}

func (o ObserverFuncs) OnQueueChange(items []*models.QueueItem) {
	if o.QueueChange != nil {
		o.QueueChange(items)
	}
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }
