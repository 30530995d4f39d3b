package crdt

import (
	"sort"

	"github.com/iudanet/boardsync/internal/models"
)

// ObjectSet представляет таблицу объектов доски с набором tombstone'ов.
// Конфликты изменений разрешаются по правилу LWW (Last-Write-Wins):
// изменение с меньшим timestamp отбрасывается, при равных timestamp
// побеждает примененное позже. Удаленный идентификатор никогда не
// воскрешается.
//
// ObjectSet не синхронизирован: доступ сериализует владелец (board.Manager).
type ObjectSet struct {
	objects    map[string]*models.BoardObject // map[id]object
	tombstones map[string]struct{}            // удаленные идентификаторы
}

// NewObjectSet создает пустую таблицу объектов.
func NewObjectSet() *ObjectSet {
	return &ObjectSet{
		objects:    make(map[string]*models.BoardObject),
		tombstones: make(map[string]struct{}),
	}
}

// Add вставляет новый объект, созданный операцией add.
// Возвращает nil, если объект уже существует или был удален.
func (s *ObjectSet) Add(op *models.Operation) *models.BoardObject {
	if _, exists := s.objects[op.ObjectID]; exists {
		return nil
	}
	if s.IsTombstoned(op.ObjectID) {
		return nil
	}

	obj := &models.BoardObject{
		ID:        op.ObjectID,
		Data:      models.CloneData(op.Data),
		CreatedAt: op.Timestamp,
		UpdatedAt: op.Timestamp,
		CreatedBy: op.UserID,
	}
	if obj.Data == nil {
		obj.Data = map[string]any{}
	}

	s.objects[obj.ID] = obj
	return obj.Clone()
}

// Update накладывает полезную нагрузку операции поверх полей объекта.
// Используется для update и transform. Возвращает новую и предыдущую
// версии объекта или nil, если объекта нет или операция устарела.
func (s *ObjectSet) Update(op *models.Operation) (updated, previous *models.BoardObject) {
	return s.patch(op, op.Data)
}

// Move меняет только координаты x/y объекта, остальные поля полезной
// нагрузки игнорируются. Отсутствующая координата сохраняет прежнее значение.
func (s *ObjectSet) Move(op *models.Operation) (updated, previous *models.BoardObject) {
	coords := make(map[string]any, 2)
	for _, key := range []string{"x", "y"} {
		if v, ok := op.Data[key]; ok && v != nil {
			coords[key] = v
		}
	}
	return s.patch(op, coords)
}

func (s *ObjectSet) patch(op *models.Operation, fields map[string]any) (updated, previous *models.BoardObject) {
	existing, exists := s.objects[op.ObjectID]
	if !exists {
		return nil, nil
	}

	// LWW: устаревшая операция отбрасывается, равный timestamp принимается
	if op.Timestamp < existing.UpdatedAt {
		return nil, nil
	}

	previous = existing.Clone()

	next := existing.Clone()
	for k, v := range models.CloneData(fields) {
		next.Data[k] = v
	}
	next.UpdatedAt = op.Timestamp
	next.UpdatedBy = op.UserID

	s.objects[next.ID] = next
	return next.Clone(), previous
}

// Remove удаляет объект и помечает идентификатор tombstone'ом.
// Tombstone ставится даже для неизвестного объекта, чтобы будущий add
// с этим идентификатором был отклонен. Возвращает удаленный объект
// или nil, если удалять было нечего.
func (s *ObjectSet) Remove(id string) *models.BoardObject {
	s.tombstones[id] = struct{}{}

	existing, exists := s.objects[id]
	if !exists {
		return nil
	}

	delete(s.objects, id)
	return existing
}

// Clear помечает tombstone'ами все живые объекты и очищает таблицу.
// Возвращает идентификаторы удаленных объектов.
func (s *ObjectSet) Clear() []string {
	ids := make([]string, 0, len(s.objects))
	for id := range s.objects {
		s.tombstones[id] = struct{}{}
		ids = append(ids, id)
	}

	s.objects = make(map[string]*models.BoardObject)
	sort.Strings(ids)
	return ids
}

// Get возвращает копию объекта по ID или nil.
func (s *ObjectSet) Get(id string) *models.BoardObject {
	obj, exists := s.objects[id]
	if !exists {
		return nil
	}
	return obj.Clone()
}

// GetAll возвращает копии всех живых объектов в порядке создания
// (createdAt, затем id).
func (s *ObjectSet) GetAll() []*models.BoardObject {
	result := make([]*models.BoardObject, 0, len(s.objects))
	for _, obj := range s.objects {
		result = append(result, obj.Clone())
	}
	sortObjects(result)
	return result
}

// InRegion возвращает копии объектов, пересекающих регион.
func (s *ObjectSet) InRegion(x, y, width, height float64) []*models.BoardObject {
	var result []*models.BoardObject
	for _, obj := range s.objects {
		if obj.IntersectsRegion(x, y, width, height) {
			result = append(result, obj.Clone())
		}
	}
	sortObjects(result)
	return result
}

// Contains проверяет наличие живого объекта с заданным ID.
func (s *ObjectSet) Contains(id string) bool {
	_, exists := s.objects[id]
	return exists
}

// IsTombstoned проверяет, был ли идентификатор когда-либо удален.
func (s *ObjectSet) IsTombstoned(id string) bool {
	_, exists := s.tombstones[id]
	return exists
}

// Tombstones возвращает отсортированный список удаленных идентификаторов.
func (s *ObjectSet) Tombstones() []string {
	ids := make([]string, 0, len(s.tombstones))
	for id := range s.tombstones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Size возвращает количество живых объектов.
func (s *ObjectSet) Size() int {
	return len(s.objects)
}

// TombstoneCount возвращает количество tombstone'ов.
func (s *ObjectSet) TombstoneCount() int {
	return len(s.tombstones)
}

// Load заменяет содержимое таблицы объектами и tombstone'ами снимка.
// Объекты загружаются как есть, без применения LWW.
func (s *ObjectSet) Load(objects []*models.BoardObject, tombstones []string) {
	s.Reset()

	for _, obj := range objects {
		if obj == nil {
			continue
		}
		clone := obj.Clone()
		if clone.Data == nil {
			clone.Data = map[string]any{}
		}
		s.objects[clone.ID] = clone
	}

	for _, id := range tombstones {
		s.tombstones[id] = struct{}{}
	}
}

// Reset удаляет все объекты и tombstone'ы.
func (s *ObjectSet) Reset() {
	s.objects = make(map[string]*models.BoardObject)
	s.tombstones = make(map[string]struct{})
}

func sortObjects(objects []*models.BoardObject) {
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].CreatedAt != objects[j].CreatedAt {
			return objects[i].CreatedAt < objects[j].CreatedAt
		}
		return objects[i].ID < objects[j].ID
	})
}
