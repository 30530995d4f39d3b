package models

import (
	"encoding/json"
	"fmt"
)

// ObjectType константы для типов объектов на доске
const (
	ObjectTypeStroke = "stroke"
	ObjectTypeShape  = "shape"
	ObjectTypeText   = "text"
	ObjectTypeImage  = "image"
	ObjectTypeSticky = "sticky"
)

// Служебные поля объекта. В JSON они лежат рядом с полями полезной нагрузки.
const (
	fieldID        = "id"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"
	fieldCreatedBy = "createdBy"
	fieldUpdatedBy = "updatedBy"
)

// BoardObject представляет объект доски: служебные поля плюс произвольные
// поля полезной нагрузки (x, y, width, height, color, ...).
type BoardObject struct {
	Data      map[string]any // Data поля полезной нагрузки
	ID        string         // ID идентификатор объекта
	CreatedBy string         // CreatedBy реплика, создавшая объект
	UpdatedBy string         // UpdatedBy реплика, изменившая объект последней
	CreatedAt int64          // CreatedAt timestamp операции создания (мс)
	UpdatedAt int64          // UpdatedAt timestamp последнего принятого изменения (мс)
}

// Clone создает глубокую копию объекта
func (o *BoardObject) Clone() *BoardObject {
	clone := *o
	clone.Data = CloneData(o.Data)
	return &clone
}

// Get возвращает поле полезной нагрузки.
func (o *BoardObject) Get(key string) (any, bool) {
	v, ok := o.Data[key]
	return v, ok
}

// Number возвращает числовое поле полезной нагрузки (0, если поля нет
// или оно не является числом).
func (o *BoardObject) Number(key string) float64 {
	switch v := o.Data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// String возвращает строковое поле полезной нагрузки.
func (o *BoardObject) String(key string) string {
	s, _ := o.Data[key].(string)
	return s
}

// Bounds возвращает ограничивающий прямоугольник объекта.
// Отсутствующая геометрия считается нулевой.
func (o *BoardObject) Bounds() (x, y, width, height float64) {
	return o.Number("x"), o.Number("y"), o.Number("width"), o.Number("height")
}

// IntersectsRegion проверяет пересечение ограничивающего прямоугольника
// объекта с регионом (axis-aligned bounding box).
func (o *BoardObject) IntersectsRegion(rx, ry, rw, rh float64) bool {
	ox, oy, ow, oh := o.Bounds()
	return !(ox+ow < rx || ox > rx+rw || oy+oh < ry || oy > ry+rh)
}

// MarshalJSON сериализует объект в плоский JSON.
func (o BoardObject) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(o.Data)+5)
	for k, v := range o.Data {
		flat[k] = v
	}
	flat[fieldID] = o.ID
	flat[fieldCreatedAt] = o.CreatedAt
	flat[fieldUpdatedAt] = o.UpdatedAt
	if o.CreatedBy != "" {
		flat[fieldCreatedBy] = o.CreatedBy
	}
	if o.UpdatedBy != "" {
		flat[fieldUpdatedBy] = o.UpdatedBy
	}
	return json.Marshal(flat)
}

// UnmarshalJSON восстанавливает объект из плоского JSON.
func (o *BoardObject) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	obj := BoardObject{Data: make(map[string]any, len(flat))}

	for key, raw := range flat {
		var err error
		switch key {
		case fieldID:
			err = json.Unmarshal(raw, &obj.ID)
		case fieldCreatedAt:
			err = json.Unmarshal(raw, &obj.CreatedAt)
		case fieldUpdatedAt:
			err = json.Unmarshal(raw, &obj.UpdatedAt)
		case fieldCreatedBy:
			err = json.Unmarshal(raw, &obj.CreatedBy)
		case fieldUpdatedBy:
			err = json.Unmarshal(raw, &obj.UpdatedBy)
		default:
			var v any
			err = json.Unmarshal(raw, &v)
			obj.Data[key] = v
		}
		if err != nil {
			return fmt.Errorf("failed to decode field %q: %w", key, err)
		}
	}

	*o = obj
	return nil
}

// Snapshot представляет полное состояние доски для экспорта/импорта.
type Snapshot struct {
	Objects    []*BoardObject `json:"objects"`
	Tombstones []string       `json:"tombstones"`
	Version    int64          `json:"version"`
}
