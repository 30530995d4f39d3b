package board

import "github.com/iudanet/boardsync/internal/models"

//go:generate moq -out listener_mock.go . Listener

// Listener получает уведомления Manager'а. Это единственный канал,
// через который Manager общается со слоем отрисовки.
type Listener interface {
	// OnObjectAdded вызывается после вставки нового объекта
	OnObjectAdded(obj *models.BoardObject)

	// OnObjectUpdated вызывается после принятого update/move/transform
	OnObjectUpdated(updated, previous *models.BoardObject)

	// OnObjectDeleted вызывается после удаления существующего объекта
	OnObjectDeleted(obj *models.BoardObject)

	// OnPartialRedraw вызывается для примененной удаленной операции.
	// objectID пуст для clear.
	OnPartialRedraw(objectID string, opType models.OpType)

	// OnFullRedraw вызывается после clear, загрузки снимка и полной ресинхронизации
	OnFullRedraw()

	// OnVersionMismatch вызывается перед полной ресинхронизацией с сервером
	OnVersionMismatch(localVersion, serverVersion int64)
}

// Callbacks адаптирует набор функций к Listener. Незаданные функции игнорируются.
type Callbacks struct {
	ObjectAdded     func(obj *models.BoardObject)
	ObjectUpdated   func(updated, previous *models.BoardObject)
	ObjectDeleted   func(obj *models.BoardObject)
	PartialRedraw   func(objectID string, opType models.OpType)
	FullRedraw      func()
	VersionMismatch func(localVersion, serverVersion int64)
}

var _ Listener = Callbacks{}

func (c Callbacks) OnObjectAdded(obj *models.BoardObject) {
	if c.ObjectAdded != nil {
		c.ObjectAdded(obj)
	}
}

func (c Callbacks) OnObjectUpdated(updated, previous *models.BoardObject) {
	if c.ObjectUpdated != nil {
		c.ObjectUpdated(updated, previous)
	}
}

func (c Callbacks) OnObjectDeleted(obj *models.BoardObject) {
	if c.ObjectDeleted != nil {
		c.ObjectDeleted(obj)
	}
}

func (c Callbacks) OnPartialRedraw(objectID string, opType models.OpType) {
	if c.PartialRedraw != nil {
		c.PartialRedraw(objectID, opType)
	}
}

func (c Callbacks) OnFullRedraw() {
	if c.FullRedraw != nil {
		c.FullRedraw()
	}
}

func (c Callbacks) OnVersionMismatch(localVersion, serverVersion int64) {
	if c.VersionMismatch != nil {
		c.VersionMismatch(localVersion, serverVersion)
	}
}

// NopListener игнорирует все уведомления
var NopListener Listener = Callbacks{}
