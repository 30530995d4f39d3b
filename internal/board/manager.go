package board

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/boardsync/internal/crdt"
	"github.com/iudanet/boardsync/internal/models"
)

// event отложенное уведомление Listener'а. Уведомления доставляются
// после освобождения мьютекса, поэтому Listener может обращаться к Manager.
type event func(Listener)

// Manager владеет локальным состоянием доски и применяет к нему операции
// (локальные и удаленные) по правилам LWW с tombstone'ами.
//
// Индекс примененных операций не компактируется и растет в течение
// всей сессии.
type Manager struct {
	listener        Listener
	logger          *slog.Logger
	clock           *crdt.VectorClock
	objects         *crdt.ObjectSet
	appliedOps      map[string]*models.Operation // map[opID]op, ключ идемпотентности
	nodeID          string
	pendingOps      []*models.Operation // локальные операции без подтверждения сервера
	version         int64
	lastSyncVersion int64
	mu              sync.Mutex
}

// NewManager создает менеджер реплики. Пустой nodeID заменяется новым UUID,
// nil listener - NopListener.
func NewManager(nodeID string, listener Listener, logger *slog.Logger) *Manager {
	if nodeID == "" {
		nodeID = uuid.New().String()
	}
	if listener == nil {
		listener = NopListener
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		listener:   listener,
		logger:     logger,
		nodeID:     nodeID,
		clock:      crdt.NewVectorClockWithNodeID(nodeID, nil),
		objects:    crdt.NewObjectSet(),
		appliedOps: make(map[string]*models.Operation),
	}
}

// NodeID возвращает идентификатор реплики.
func (m *Manager) NodeID() string {
	return m.nodeID
}

// CreateOperation создает локальную операцию: увеличивает часы и версию,
// кладет операцию в список ожидающих подтверждения и сразу применяет ее
// локально (оптимистичное обновление). Возвращает операцию для отправки.
// Ошибка возвращается только при некорректных аргументах.
func (m *Manager) CreateOperation(opType models.OpType, objectID string, data map[string]any) (*models.Operation, error) {
	m.mu.Lock()

	op, err := models.NewOperation(opType, objectID, data,
		models.WithUserID(m.nodeID),
		models.WithVersion(m.version+1),
	)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	op.VectorClock = m.clock.Increment()
	m.version++
	m.pendingOps = append(m.pendingOps, op)

	var events []event
	m.applyLocked(op, true, &events)
	m.mu.Unlock()

	m.dispatch(events)
	return op.Clone(), nil
}

// ApplyOperation применяет операцию. Единая точка входа для локальных
// и удаленных операций. Возвращает false для повторной, устаревшей или
// отклоненной операции.
func (m *Manager) ApplyOperation(op *models.Operation, isLocal bool) bool {
	if op == nil {
		return false
	}

	m.mu.Lock()
	var events []event
	applied := m.applyLocked(op.Clone(), isLocal, &events)
	m.mu.Unlock()

	m.dispatch(events)
	return applied
}

func (m *Manager) applyLocked(op *models.Operation, isLocal bool, events *[]event) bool {
	// Уже применена - повторная доставка безопасно игнорируется
	if _, exists := m.appliedOps[op.ID]; exists {
		return false
	}

	// Причинный учет: слияние часов не блокирует и не переупорядочивает применение
	if op.VectorClock != nil {
		m.clock.Merge(op.VectorClock)
	}

	applied := false

	switch op.Type {
	case models.OpAdd:
		if obj := m.objects.Add(op); obj != nil {
			applied = true
			*events = append(*events, func(l Listener) { l.OnObjectAdded(obj) })
		}
	case models.OpUpdate, models.OpTransform:
		if updated, previous := m.objects.Update(op); updated != nil {
			applied = true
			*events = append(*events, func(l Listener) { l.OnObjectUpdated(updated, previous) })
		}
	case models.OpMove:
		if updated, previous := m.objects.Move(op); updated != nil {
			applied = true
			*events = append(*events, func(l Listener) { l.OnObjectUpdated(updated, previous) })
		}
	case models.OpDelete:
		if removed := m.objects.Remove(op.ObjectID); removed != nil {
			applied = true
			*events = append(*events, func(l Listener) { l.OnObjectDeleted(removed) })
		}
	case models.OpClear:
		m.objects.Clear()
		applied = true
		*events = append(*events, func(l Listener) { l.OnFullRedraw() })
	default:
		m.logger.Warn("Unknown operation type", "op_id", op.ID, "type", op.Type)
	}

	if !applied {
		m.logger.Debug("Operation not applied",
			"op_id", op.ID,
			"type", op.Type,
			"object_id", op.ObjectID,
			"timestamp", op.Timestamp)
		return false
	}

	m.appliedOps[op.ID] = op

	if !isLocal {
		objectID, opType := op.ObjectID, op.Type
		*events = append(*events, func(l Listener) { l.OnPartialRedraw(objectID, opType) })
	}

	return true
}

// HandleVersionMismatch выполняет полную ресинхронизацию с сервером:
// локальное состояние сбрасывается, объекты снимка сервера загружаются
// как есть (без LWW). Недавние локальные изменения, не дошедшие до
// сервера, при этом теряются.
func (m *Manager) HandleVersionMismatch(serverVersion int64, serverState *models.Snapshot) {
	m.mu.Lock()

	localVersion := m.version
	m.logger.Warn("Version mismatch, performing full resync",
		"local_version", localVersion,
		"server_version", serverVersion)

	events := []event{func(l Listener) { l.OnVersionMismatch(localVersion, serverVersion) }}

	var objects []*models.BoardObject
	if serverState != nil {
		objects = serverState.Objects
	}

	m.objects.Load(objects, nil)
	m.appliedOps = make(map[string]*models.Operation)
	m.pendingOps = nil
	m.version = serverVersion
	m.lastSyncVersion = serverVersion

	events = append(events, func(l Listener) { l.OnFullRedraw() })
	m.mu.Unlock()

	m.dispatch(events)
}

// GetPendingOps возвращает копии локальных операций, ожидающих подтверждения.
func (m *Manager) GetPendingOps() []*models.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*models.Operation, 0, len(m.pendingOps))
	for _, op := range m.pendingOps {
		result = append(result, op.Clone())
	}
	return result
}

// AcknowledgeSynced удаляет подтвержденные сервером операции из списка
// ожидающих и фиксирует текущую версию как синхронизированную.
func (m *Manager) AcknowledgeSynced(opIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pendingOps = slices.DeleteFunc(m.pendingOps, func(op *models.Operation) bool {
		return slices.Contains(opIDs, op.ID)
	})
	m.lastSyncVersion = m.version
}

// GetDiffSince возвращает примененные операции с версией больше sinceVersion
// по возрастанию версии. Используется для догоняющей синхронизации без снимка.
func (m *Manager) GetDiffSince(sinceVersion int64) []*models.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ops []*models.Operation
	for _, op := range m.appliedOps {
		if op.Version > sinceVersion {
			ops = append(ops, op.Clone())
		}
	}

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Version != ops[j].Version {
			return ops[i].Version < ops[j].Version
		}
		return ops[i].ID < ops[j].ID
	})

	return ops
}

// GetSnapshot возвращает полное состояние доски.
func (m *Manager) GetSnapshot() *models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &models.Snapshot{
		Version:    m.version,
		Objects:    m.objects.GetAll(),
		Tombstones: m.objects.Tombstones(),
	}
}

// LoadSnapshot заменяет объекты и tombstone'ы содержимым снимка.
// Всегда вызывает полную перерисовку.
func (m *Manager) LoadSnapshot(snapshot *models.Snapshot) {
	m.mu.Lock()

	if snapshot == nil {
		snapshot = &models.Snapshot{}
	}

	m.objects.Load(snapshot.Objects, snapshot.Tombstones)
	m.version = snapshot.Version
	m.lastSyncVersion = snapshot.Version
	m.mu.Unlock()

	m.dispatch([]event{func(l Listener) { l.OnFullRedraw() }})
}

// GetObjectsInRegion возвращает объекты, ограничивающий прямоугольник
// которых пересекает заданный регион. Используется для частичной перерисовки.
func (m *Manager) GetObjectsInRegion(x, y, width, height float64) []*models.BoardObject {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.objects.InRegion(x, y, width, height)
}

// GetObject возвращает копию объекта или nil.
func (m *Manager) GetObject(id string) *models.BoardObject {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.objects.Get(id)
}

// GetObjects возвращает копии всех живых объектов.
func (m *Manager) GetObjects() []*models.BoardObject {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.objects.GetAll()
}

// IsTombstoned сообщает, был ли объект удален.
func (m *Manager) IsTombstoned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.objects.IsTombstoned(id)
}

// IsApplied сообщает, была ли операция уже применена.
func (m *Manager) IsApplied(opID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.appliedOps[opID]
	return exists
}

// Version возвращает локальную версию.
func (m *Manager) Version() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.version
}

// LastSyncVersion возвращает версию последней синхронизации.
func (m *Manager) LastSyncVersion() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastSyncVersion
}

// ClockSnapshot возвращает снимок векторных часов реплики.
func (m *Manager) ClockSnapshot() map[string]int64 {
	return m.clock.Snapshot()
}

// MergeClock вливает сохраненный снимок часов (например, после перезапуска).
func (m *Manager) MergeClock(snapshot map[string]int64) {
	m.clock.Merge(snapshot)
}

// Destroy освобождает все состояние менеджера.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects.Reset()
	m.appliedOps = make(map[string]*models.Operation)
	m.pendingOps = nil
}

func (m *Manager) dispatch(events []event) {
	for _, ev := range events {
		ev(m.listener)
	}
}
