package boards

import (
	"errors"
	"fmt"

	"github.com/iudanet/boardsync/internal/models"
)

// ErrVersionMismatch клиент знает версию, которой на сервере нет
var ErrVersionMismatch = errors.New("version mismatch")

// VersionMismatchError несет снимок доски для полной ресинхронизации клиента
type VersionMismatchError struct {
	Snapshot      *models.Snapshot
	KnownVersion  int64
	ServerVersion int64
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch: client known %d, server %d", e.KnownVersion, e.ServerVersion)
}

func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}
