package api

import "encoding/json"

// Операции передаются в wire-формате:
// {id, type, objectId|null, data, timestamp, userId, vectorClock, version}

// PushRequest представляет пачку операций от реплики
type PushRequest struct {
	ClientID     string            `json:"client_id"`     // идентификатор реплики-отправителя
	Operations   []json.RawMessage `json:"operations"`    // операции в порядке постановки в очередь
	KnownVersion int64             `json:"known_version"` // последняя известная реплике версия сервера
}

// PushResponse представляет ответ сервера на пачку операций
type PushResponse struct {
	Operations []json.RawMessage `json:"operations"` // операции других реплик, которых клиент еще не видел
	Version    int64             `json:"version"`    // текущая версия доски на сервере
	Accepted   int               `json:"accepted"`   // количество новых операций
	Duplicates int               `json:"duplicates"` // количество повторно доставленных операций
}

// DiffResponse представляет операции доски после заданной версии
type DiffResponse struct {
	Operations []json.RawMessage `json:"operations"`
	Version    int64             `json:"version"`
}

// SnapshotResponse представляет полное состояние доски
type SnapshotResponse struct {
	Objects    []json.RawMessage `json:"objects"`    // объекты в плоском JSON-формате
	Tombstones []string          `json:"tombstones"` // идентификаторы удаленных объектов
	Version    int64             `json:"version"`
}

// VersionMismatchResponse возвращается со статусом 409, когда известная
// клиенту версия опережает сервер и нужна полная ресинхронизация
type VersionMismatchResponse struct {
	Error    string           `json:"error"`
	Snapshot SnapshotResponse `json:"snapshot"`
	Version  int64            `json:"version"`
}

// RealtimeMessage представляет сообщение websocket-канала доски
type RealtimeMessage struct {
	Type      string          `json:"type"`                // тип сообщения (operation)
	BoardID   string          `json:"board_id"`            // доска
	Operation json.RawMessage `json:"operation,omitempty"` // примененная сервером операция
	Version   int64           `json:"version"`             // версия доски после операции
}

// RealtimeMessage типы
const (
	RealtimeOperation = "operation"
)

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}
