package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// OpType тип операции над объектами доски
type OpType string

// OpType константы для типов операций
const (
	OpAdd       OpType = "add"
	OpUpdate    OpType = "update"
	OpDelete    OpType = "delete"
	OpMove      OpType = "move"
	OpTransform OpType = "transform"
	OpClear     OpType = "clear"
)

// Valid сообщает, является ли тип операции известным.
func (t OpType) Valid() bool {
	switch t {
	case OpAdd, OpUpdate, OpDelete, OpMove, OpTransform, OpClear:
		return true
	}
	return false
}

// Operation представляет неизменяемую единицу изменения доски.
// ID глобально уникален и служит ключом идемпотентности.
type Operation struct {
	Data        map[string]any   `json:"data"`        // Data полезная нагрузка операции
	VectorClock map[string]int64 `json:"vectorClock"` // VectorClock снимок векторных часов автора
	ID          string           `json:"id"`          // ID уникальный идентификатор операции (UUID)
	Type        OpType           `json:"type"`        // Type тип операции
	ObjectID    string           `json:"objectId"`    // ObjectID идентификатор объекта ("" для clear)
	UserID      string           `json:"userId"`      // UserID идентификатор реплики-автора
	Timestamp   int64            `json:"timestamp"`   // Timestamp время создания в миллисекундах (LWW)
	Version     int64            `json:"version"`     // Version локальная версия реплики-автора
}

// OperationOption настраивает необязательные поля операции.
type OperationOption func(*Operation)

// WithID задает идентификатор операции.
func WithID(id string) OperationOption {
	return func(op *Operation) { op.ID = id }
}

// WithTimestamp задает timestamp операции в миллисекундах.
func WithTimestamp(ts int64) OperationOption {
	return func(op *Operation) { op.Timestamp = ts }
}

// WithUserID задает идентификатор реплики-автора.
func WithUserID(userID string) OperationOption {
	return func(op *Operation) { op.UserID = userID }
}

// WithVectorClock задает снимок векторных часов.
func WithVectorClock(clock map[string]int64) OperationOption {
	return func(op *Operation) { op.VectorClock = maps.Clone(clock) }
}

// WithVersion задает версию операции.
func WithVersion(version int64) OperationOption {
	return func(op *Operation) { op.Version = version }
}

// NewOperation создает операцию. Обязательны тип, objectID (кроме clear) и data.
// Необязательные поля по умолчанию: ID - новый UUID, Timestamp - текущее время,
// Version - 1.
func NewOperation(opType OpType, objectID string, data map[string]any, opts ...OperationOption) (*Operation, error) {
	if err := validateTarget(opType, objectID); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}

	op := &Operation{
		ID:        uuid.New().String(),
		Type:      opType,
		ObjectID:  objectID,
		Data:      CloneData(data),
		Timestamp: time.Now().UnixMilli(),
		Version:   1,
	}

	for _, opt := range opts {
		opt(op)
	}

	if op.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidOperation)
	}

	return op, nil
}

// Validate проверяет операцию, пришедшую извне: тип известен, id задан,
// clear не указывает объект, остальные типы указывают.
func (op *Operation) Validate() error {
	if err := validateTarget(op.Type, op.ObjectID); err != nil {
		return err
	}
	if op.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidOperation)
	}
	return nil
}

func validateTarget(opType OpType, objectID string) error {
	if !opType.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOperation, opType)
	}
	if opType == OpClear && objectID != "" {
		return fmt.Errorf("%w: clear must not target an object", ErrInvalidOperation)
	}
	if opType != OpClear && objectID == "" {
		return fmt.Errorf("%w: object id is required for %s", ErrInvalidOperation, opType)
	}
	return nil
}

// Clone создает глубокую копию операции
func (op *Operation) Clone() *Operation {
	clone := *op
	clone.Data = CloneData(op.Data)
	clone.VectorClock = maps.Clone(op.VectorClock)
	return &clone
}

// operationJSON описывает wire-формат: objectId равен null для clear.
type operationJSON struct {
	Data        map[string]any   `json:"data"`
	VectorClock map[string]int64 `json:"vectorClock"`
	ObjectID    *string          `json:"objectId"`
	ID          string           `json:"id"`
	Type        OpType           `json:"type"`
	UserID      string           `json:"userId"`
	Timestamp   int64            `json:"timestamp"`
	Version     int64            `json:"version"`
}

// MarshalJSON сериализует операцию в wire-формат.
func (op Operation) MarshalJSON() ([]byte, error) {
	wire := operationJSON{
		ID:          op.ID,
		Type:        op.Type,
		Data:        op.Data,
		Timestamp:   op.Timestamp,
		UserID:      op.UserID,
		VectorClock: op.VectorClock,
		Version:     op.Version,
	}
	if op.ObjectID != "" {
		objectID := op.ObjectID
		wire.ObjectID = &objectID
	}
	if wire.Data == nil {
		wire.Data = map[string]any{}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON восстанавливает операцию из wire-формата.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var wire operationJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	if wire.Data == nil {
		wire.Data = map[string]any{}
	}

	*op = Operation{
		ID:          wire.ID,
		Type:        wire.Type,
		Data:        wire.Data,
		Timestamp:   wire.Timestamp,
		UserID:      wire.UserID,
		VectorClock: wire.VectorClock,
		Version:     wire.Version,
	}
	if wire.ObjectID != nil {
		op.ObjectID = *wire.ObjectID
	}

	return nil
}

// ToJSON сериализует операцию для передачи по сети или хранения.
func (op *Operation) ToJSON() ([]byte, error) {
	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal operation: %w", err)
	}
	return data, nil
}

// OperationFromJSON восстанавливает операцию из JSON и проверяет ее через Validate.
func OperationFromJSON(data []byte) (*Operation, error) {
	op := &Operation{}
	if err := json.Unmarshal(data, op); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operation: %w", err)
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return op, nil
}

// CloneData создает глубокую копию JSON-подобной полезной нагрузки.
func CloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	clone := make(map[string]any, len(data))
	for k, v := range data {
		clone[k] = cloneValue(v)
	}
	return clone
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneData(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
