package boards

import (
	"context"
	"log/slog"
	"sync"

	"github.com/iudanet/boardsync/internal/server/storage"
)

// Registry держит загруженные доски. Доска загружается из журнала
// при первом обращении и живет до Close.
type Registry struct {
	log    storage.OperationLog
	logger *slog.Logger
	boards map[string]*Board
	mu     sync.Mutex
}

// NewRegistry creates a new board registry
func NewRegistry(log storage.OperationLog, logger *slog.Logger) *Registry {
	return &Registry{
		log:    log,
		logger: logger,
		boards: make(map[string]*Board),
	}
}

// Board возвращает доску, загружая ее из журнала при необходимости.
// Неизвестная доска создается пустой с версией 0.
func (r *Registry) Board(ctx context.Context, boardID string) (*Board, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.boards[boardID]; ok {
		return b, nil
	}

	b, err := loadBoard(ctx, boardID, r.log, r.logger)
	if err != nil {
		return nil, err
	}
	r.boards[boardID] = b
	return b, nil
}

// Preload загружает все доски, у которых есть операции в журнале
func (r *Registry) Preload(ctx context.Context) (int, error) {
	ids, err := r.log.ListBoards(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, err := r.Board(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// Count количество загруженных досок
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.boards)
}

// Close освобождает состояние всех досок
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, b := range r.boards {
		b.manager.Destroy()
		delete(r.boards, id)
	}
}
