package storage

import (
	"context"
	"time"

	"github.com/iudanet/boardsync/internal/models"
)

//go:generate moq -out oplog_mock.go . OperationLog

// StoredOperation операция, принятая сервером. Seq - порядковый номер
// в журнале доски; последний Seq является версией доски на сервере.
type StoredOperation struct {
	ReceivedAt time.Time         // ReceivedAt время приема сервером
	Operation  *models.Operation // Operation сама операция
	BoardID    string            // BoardID доска
	ClientID   string            // ClientID реплика, отправившая операцию
	Seq        int64             // Seq порядковый номер в журнале доски (с 1)
}

// OperationLog defines interface for the append-only per-board operation log
type OperationLog interface {
	// Append appends operations to the board log in the given order.
	// Operations whose ID is already in the log are skipped (idempotent).
	// Returns the newly stored operations with their assigned sequence numbers.
	Append(ctx context.Context, boardID, clientID string, ops []*models.Operation) ([]*StoredOperation, error)

	// Since retrieves operations with seq > since in ascending order
	// Returns empty slice if there are none
	Since(ctx context.Context, boardID string, since int64) ([]*StoredOperation, error)

	// Head returns the latest sequence number of the board
	// Returns ErrBoardNotFound if the board has no operations
	Head(ctx context.Context, boardID string) (int64, error)

	// ListBoards returns ids of all boards that have operations
	ListBoards(ctx context.Context) ([]string, error)
}
