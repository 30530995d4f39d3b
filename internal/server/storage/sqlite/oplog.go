package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/storage"
)

var _ storage.OperationLog = (*Storage)(nil)

// Append appends operations to the board log.
// Повторные операции (тот же ID на той же доске) пропускаются.
func (s *Storage) Append(ctx context.Context, boardID, clientID string, ops []*models.Operation) ([]*storage.StoredOperation, error) {
	if len(ops) == 0 {
		return []*storage.StoredOperation{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// после Commit возвращает sql.ErrTxDone, это ожидаемо
		_ = tx.Rollback()
	}()

	var head int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM board_operations WHERE board_id = ?`,
		boardID,
	).Scan(&head)
	if err != nil {
		return nil, fmt.Errorf("failed to get board head: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO board_operations (
			board_id, seq, op_id, client_id, op_type, object_id, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	stored := make([]*storage.StoredOperation, 0, len(ops))

	for _, op := range ops {
		if op == nil || op.ID == "" {
			return nil, fmt.Errorf("%w: empty operation id", storage.ErrInvalidOperation)
		}

		payload, err := op.ToJSON()
		if err != nil {
			return nil, err
		}

		result, err := tx.ExecContext(ctx, query,
			boardID,
			head+1,
			op.ID,
			clientID,
			string(op.Type),
			nullString(op.ObjectID),
			payload,
			now.UnixMilli(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert operation: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			// дубликат
			continue
		}

		head++
		stored = append(stored, &storage.StoredOperation{
			Seq:        head,
			BoardID:    boardID,
			ClientID:   clientID,
			Operation:  op.Clone(),
			ReceivedAt: time.UnixMilli(now.UnixMilli()),
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return stored, nil
}

// Since retrieves operations with seq > since in ascending order
func (s *Storage) Since(ctx context.Context, boardID string, since int64) (ops []*storage.StoredOperation, err error) {
	query := `
		SELECT seq, board_id, client_id, payload, received_at
		FROM board_operations
		WHERE board_id = ? AND seq > ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, boardID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			err = cerr
		}
	}()

	return scanOperations(rows)
}

// Head returns the latest sequence number of the board
func (s *Storage) Head(ctx context.Context, boardID string) (int64, error) {
	var head sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(seq) FROM board_operations WHERE board_id = ?`,
		boardID,
	).Scan(&head)
	if err != nil {
		return 0, fmt.Errorf("failed to get board head: %w", err)
	}
	if !head.Valid {
		return 0, storage.ErrBoardNotFound
	}

	return head.Int64, nil
}

// ListBoards returns ids of all boards that have operations
func (s *Storage) ListBoards(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT board_id FROM board_operations ORDER BY board_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	boards := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan board id: %w", err)
		}
		boards = append(boards, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return boards, nil
}

// scanOperations is a helper function to scan multiple operations from rows
func scanOperations(rows *sql.Rows) ([]*storage.StoredOperation, error) {
	ops := []*storage.StoredOperation{}

	for rows.Next() {
		var (
			stored     storage.StoredOperation
			payload    []byte
			receivedAt int64
		)

		if err := rows.Scan(&stored.Seq, &stored.BoardID, &stored.ClientID, &payload, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		op, err := models.OperationFromJSON(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode operation seq %d: %w", stored.Seq, err)
		}

		stored.Operation = op
		stored.ReceivedAt = time.UnixMilli(receivedAt)
		ops = append(ops, &stored)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return ops, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
