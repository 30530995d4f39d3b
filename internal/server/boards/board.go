package boards

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iudanet/boardsync/internal/board"
	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
)

// ServerNodeID идентификатор реплики сервера в векторных часах
const ServerNodeID = "server"

// Board авторитетная реплика доски на сервере. Версия доски - seq
// последней операции в журнале.
type Board struct {
	log     storage.OperationLog
	manager *board.Manager
	logger  *slog.Logger
	id      string
	version int64
	mu      sync.Mutex
}

// PushResult результат приема пачки операций
type PushResult struct {
	Accepted   []*storage.StoredOperation // новые операции в порядке seq
	Missed     []*storage.StoredOperation // операции других реплик после known_version
	Duplicates int                        // повторно присланные операции
	Version    int64                      // версия доски после приема
}

func loadBoard(ctx context.Context, id string, log storage.OperationLog, logger *slog.Logger) (*Board, error) {
	b := &Board{
		id:      id,
		log:     log,
		logger:  logger,
		manager: board.NewManager(ServerNodeID, nil, logger),
	}

	if err := b.catchUpLocked(ctx); err != nil {
		return nil, fmt.Errorf("failed to load board %s: %w", id, err)
	}

	logger.Debug("Board loaded", "board_id", id, "version", b.version)
	return b, nil
}

// ID возвращает идентификатор доски
func (b *Board) ID() string {
	return b.id
}

// Version возвращает версию доски, известную этому экземпляру
func (b *Board) Version() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.version
}

// catchUpLocked применяет операции, дописанные в журнал после b.version.
// Журнал общий для всех экземпляров сервера, поэтому перед каждым
// обращением реплика догоняет его.
func (b *Board) catchUpLocked(ctx context.Context) error {
	ops, err := b.log.Since(ctx, b.id, b.version)
	if err != nil {
		return err
	}
	for _, stored := range ops {
		b.manager.ApplyOperation(stored.Operation, false)
		b.version = stored.Seq
	}
	if len(ops) > 0 {
		b.logger.Debug("Board caught up", "board_id", b.id, "operations", len(ops), "version", b.version)
	}
	return nil
}

// Push принимает пачку операций клиента. knownVersion - последняя версия
// сервера, которую видел клиент; если она больше текущей, журналы разошлись
// и возвращается *VersionMismatchError со снимком доски.
func (b *Board) Push(ctx context.Context, clientID string, knownVersion int64, ops []*models.Operation) (*PushResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.catchUpLocked(ctx); err != nil {
		return nil, err
	}

	if knownVersion > b.version {
		b.logger.Warn("Client is ahead of server, forcing resync",
			"board_id", b.id,
			"client_id", clientID,
			"known_version", knownVersion,
			"server_version", b.version)

		return nil, &VersionMismatchError{
			KnownVersion:  knownVersion,
			ServerVersion: b.version,
			Snapshot:      b.snapshotLocked(),
		}
	}

	accepted, err := b.log.Append(ctx, b.id, clientID, ops)
	if err != nil {
		return nil, err
	}

	// Применяем свои и чужие новые операции строго в порядке seq
	if err := b.catchUpLocked(ctx); err != nil {
		return nil, err
	}

	// Операции других реплик, которых клиент еще не видел
	since, err := b.sinceLocked(ctx, knownVersion)
	if err != nil {
		return nil, err
	}
	missed := make([]*storage.StoredOperation, 0, len(since))
	for _, stored := range since {
		if stored.ClientID != clientID {
			missed = append(missed, stored)
		}
	}

	return &PushResult{
		Accepted:   accepted,
		Missed:     missed,
		Duplicates: len(ops) - len(accepted),
		Version:    b.version,
	}, nil
}

// Since возвращает операции после версии since и текущую версию доски
func (b *Board) Since(ctx context.Context, since int64) ([]*storage.StoredOperation, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.catchUpLocked(ctx); err != nil {
		return nil, 0, err
	}

	ops, err := b.sinceLocked(ctx, since)
	if err != nil {
		return nil, 0, err
	}
	return ops, b.version, nil
}

// sinceLocked читает журнал после since, не выходя за b.version
func (b *Board) sinceLocked(ctx context.Context, since int64) ([]*storage.StoredOperation, error) {
	ops, err := b.log.Since(ctx, b.id, since)
	if err != nil {
		return nil, err
	}
	for i, stored := range ops {
		if stored.Seq > b.version {
			return ops[:i], nil
		}
	}
	return ops, nil
}

// Snapshot возвращает полное состояние доски с версией сервера
func (b *Board) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.catchUpLocked(ctx); err != nil {
		return nil, err
	}
	return b.snapshotLocked(), nil
}

func (b *Board) snapshotLocked() *models.Snapshot {
	snapshot := b.manager.GetSnapshot()
	snapshot.Version = b.version
	return snapshot
}

// ObjectCount количество живых объектов
func (b *Board) ObjectCount() int {
	return len(b.manager.GetObjects())
}
