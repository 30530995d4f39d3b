package sync

import (
	"encoding/json"
	"fmt"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/pkg/api"
)

// decodeOperations восстанавливает операции из wire-формата
func decodeOperations(raw []json.RawMessage) ([]*models.Operation, error) {
	ops := make([]*models.Operation, 0, len(raw))
	for _, data := range raw {
		op, err := models.OperationFromJSON(data)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// operationIDs извлекает идентификаторы отправленных операций
func operationIDs(raw []json.RawMessage) []string {
	ids := make([]string, 0, len(raw))
	for _, data := range raw {
		var envelope struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &envelope); err == nil && envelope.ID != "" {
			ids = append(ids, envelope.ID)
		}
	}
	return ids
}

// snapshotFromAPI конвертирует снимок сервера в модель
func snapshotFromAPI(resp *api.SnapshotResponse) (*models.Snapshot, error) {
	if resp == nil {
		return &models.Snapshot{}, nil
	}

	snapshot := &models.Snapshot{
		Version:    resp.Version,
		Tombstones: resp.Tombstones,
		Objects:    make([]*models.BoardObject, 0, len(resp.Objects)),
	}

	for _, data := range resp.Objects {
		obj := &models.BoardObject{}
		if err := json.Unmarshal(data, obj); err != nil {
			return nil, fmt.Errorf("failed to decode board object: %w", err)
		}
		snapshot.Objects = append(snapshot.Objects, obj)
	}

	return snapshot, nil
}
