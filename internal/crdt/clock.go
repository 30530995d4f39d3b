package crdt

import (
	"maps"
	"sync"

	"github.com/google/uuid"
)

// VectorClock представляет векторные часы реплики: по одному счетчику на
// каждый известный узел. Узел увеличивает только собственный счетчик,
// остальные значения приходят через Merge.
type VectorClock struct {
	clock  map[string]int64 // nodeID -> монотонно возрастающий счетчик
	nodeID string           // идентификатор узла-владельца
	mu     sync.Mutex       // мьютекс для потокобезопасности
}

// NewVectorClock создает новые векторные часы с уникальным
// идентификатором узла (UUID).
func NewVectorClock() *VectorClock {
	return NewVectorClockWithNodeID(uuid.New().String(), nil)
}

// NewVectorClockWithNodeID создает векторные часы с заданным идентификатором
// узла и начальным состоянием. Используется для тестирования или
// восстановления состояния после перезапуска.
func NewVectorClockWithNodeID(nodeID string, initial map[string]int64) *VectorClock {
	clock := make(map[string]int64, len(initial))
	maps.Copy(clock, initial)

	return &VectorClock{
		clock:  clock,
		nodeID: nodeID,
	}
}

// Increment увеличивает счетчик собственного узла и возвращает снимок часов.
// Вызывается при создании нового локального события.
func (vc *VectorClock) Increment() map[string]int64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.clock[vc.nodeID]++
	return maps.Clone(vc.clock)
}

// Merge объединяет часы с удаленным снимком: для каждого узла берется
// максимум из двух значений. Операция идемпотентна, коммутативна и
// ассоциативна, значения никогда не уменьшаются.
func (vc *VectorClock) Merge(other map[string]int64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	for node, counter := range other {
		if counter > vc.clock[node] {
			vc.clock[node] = counter
		}
	}
}

// HappensBefore сообщает, предшествуют ли текущие часы снимку other.
func (vc *VectorClock) HappensBefore(other map[string]int64) bool {
	return HappensBefore(vc.Snapshot(), other)
}

// Concurrent сообщает, являются ли события конкурентными
// (ни одно не предшествует другому).
func (vc *VectorClock) Concurrent(other map[string]int64) bool {
	return Concurrent(vc.Snapshot(), other)
}

// Get возвращает значение счетчика узла (0 для неизвестного узла).
func (vc *VectorClock) Get(nodeID string) int64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	return vc.clock[nodeID]
}

// GetNodeID возвращает идентификатор узла-владельца.
func (vc *VectorClock) GetNodeID() string {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	return vc.nodeID
}

// Snapshot возвращает копию текущего состояния часов.
func (vc *VectorClock) Snapshot() map[string]int64 {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	return maps.Clone(vc.clock)
}

// Clone создает независимую копию часов с тем же идентификатором узла.
func (vc *VectorClock) Clone() *VectorClock {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	return NewVectorClockWithNodeID(vc.nodeID, vc.clock)
}

// Reset сбрасывает все счетчики.
func (vc *VectorClock) Reset() {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	vc.clock = make(map[string]int64)
}

// HappensBefore возвращает true, если каждый компонент a не больше
// соответствующего компонента b (отсутствующие ключи считаются нулем)
// и хотя бы один компонент строго меньше.
func HappensBefore(a, b map[string]int64) bool {
	atLeastOneLess := false

	for node, ta := range a {
		tb := b[node]
		if ta > tb {
			return false
		}
		if ta < tb {
			atLeastOneLess = true
		}
	}

	for node, tb := range b {
		if _, ok := a[node]; !ok && tb > 0 {
			atLeastOneLess = true
		}
	}

	return atLeastOneLess
}

// Concurrent возвращает true, если ни a не предшествует b, ни b не предшествует a.
func Concurrent(a, b map[string]int64) bool {
	return !HappensBefore(a, b) && !HappensBefore(b, a)
}

// MergeSnapshots возвращает покомпонентный максимум двух снимков,
// не изменяя аргументы.
func MergeSnapshots(a, b map[string]int64) map[string]int64 {
	merged := maps.Clone(a)
	if merged == nil {
		merged = make(map[string]int64, len(b))
	}

	for node, counter := range b {
		if counter > merged[node] {
			merged[node] = counter
		}
	}

	return merged
}
