package api

import (
	"errors"
	"fmt"

	"github.com/iudanet/boardsync/pkg/api"
)

var (
	// ErrVersionMismatch indicates that the server requires a full resync
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrServerUnavailable indicates that the circuit breaker rejected the request
	ErrServerUnavailable = errors.New("server unavailable")
)

// VersionMismatchError carries the authoritative server state returned with 409
type VersionMismatchError struct {
	Snapshot      *api.SnapshotResponse
	ServerVersion int64
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch: server version %d", e.ServerVersion)
}

// Is позволяет сравнивать с ErrVersionMismatch через errors.Is
func (e *VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}

// StatusError describes a non-2xx server response
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// clientSide сообщает, что ошибка вызвана запросом, а не сбоем сервера
func clientSide(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < 500
	}
	return errors.Is(err, ErrVersionMismatch)
}
