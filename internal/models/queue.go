package models

// QueueStatus статус элемента офлайн-очереди
type QueueStatus string

// QueueStatus константы жизненного цикла элемента очереди
const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSyncing QueueStatus = "syncing"
	QueueStatusSynced  QueueStatus = "synced"
	QueueStatusFailed  QueueStatus = "failed"
)

// QueueItem представляет операцию, ожидающую подтверждения сервером.
type QueueItem struct {
	Operation  *Operation  `json:"operation"`  // Operation операция для отправки
	ID         string      `json:"id"`         // ID идентификатор элемента (совпадает с ID операции)
	Status     QueueStatus `json:"status"`     // Status текущий статус
	Timestamp  int64       `json:"timestamp"`  // Timestamp время постановки в очередь (мс)
	RetryCount int         `json:"retryCount"` // RetryCount количество неудачных попыток
}

// Clone создает копию элемента очереди
func (i *QueueItem) Clone() *QueueItem {
	clone := *i
	if i.Operation != nil {
		clone.Operation = i.Operation.Clone()
	}
	return &clone
}

// QueueState формат сохранения очереди одной доски.
type QueueState struct {
	BoardID string       `json:"boardId"`
	Queue   []*QueueItem `json:"queue"`
	SavedAt int64        `json:"savedAt"`
}
