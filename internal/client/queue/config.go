package queue

import "time"

// Значения конфигурации по умолчанию
const (
	DefaultMaxQueueSize      = 1000
	DefaultSyncDebounce      = time.Second
	DefaultBackgroundSyncTag = "board-sync"
)

// Config настройки офлайн-очереди
type Config struct {
	// BoardID доска, операции которой хранит очередь
	BoardID string

	// BackgroundSyncTag тег фоновой синхронизации для BackgroundSyncRegistrar
	BackgroundSyncTag string

	// MaxQueueSize максимальный размер очереди; при переполнении
	// вытесняется самый старый элемент
	MaxQueueSize int

	// SyncDebounce задержка перед автоматической синхронизацией
	SyncDebounce time.Duration

	// AutoSync включает автоматическую синхронизацию после Enqueue
	AutoSync bool
}

// DefaultConfig возвращает конфигурацию по умолчанию для доски
func DefaultConfig(boardID string) Config {
	return Config{
		BoardID:           boardID,
		BackgroundSyncTag: DefaultBackgroundSyncTag,
		MaxQueueSize:      DefaultMaxQueueSize,
		SyncDebounce:      DefaultSyncDebounce,
		AutoSync:          true,
	}
}

// withDefaults заполняет незаданные поля значениями по умолчанию
func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.SyncDebounce <= 0 {
		c.SyncDebounce = DefaultSyncDebounce
	}
	if c.BackgroundSyncTag == "" {
		c.BackgroundSyncTag = DefaultBackgroundSyncTag
	}
	return c
}
