package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/iudanet/boardsync/internal/board"
	httpClient "github.com/iudanet/boardsync/internal/client/api"
	"github.com/iudanet/boardsync/internal/client/storage"
	"github.com/iudanet/boardsync/pkg/api"
)

// Service связывает локальную реплику доски с сервером: отправляет пачки
// офлайн-очереди, подтягивает чужие операции, выполняет полную
// ресинхронизацию при расхождении версий и сохраняет состояние локально.
type Service struct {
	apiClient       httpClient.ClientAPI
	manager         *board.Manager
	snapshotStorage storage.SnapshotStorage
	metadataStorage storage.MetadataStorage
	logger          *slog.Logger
	boardID         string
	serverVersion   int64 // последняя известная версия сервера
	mu              gosync.Mutex
}

// NewService creates a new sync service
func NewService(
	boardID string,
	manager *board.Manager,
	apiClient httpClient.ClientAPI,
	snapshotStorage storage.SnapshotStorage,
	metadataStorage storage.MetadataStorage,
	logger *slog.Logger,
) *Service {
	return &Service{
		boardID:         boardID,
		manager:         manager,
		apiClient:       apiClient,
		snapshotStorage: snapshotStorage,
		metadataStorage: metadataStorage,
		logger:          logger,
	}
}

// PullResult contains pull operation results
type PullResult struct {
	Received int   // количество полученных с сервера операций
	Applied  int   // количество примененных операций (остальные - дубликаты или устаревшие)
	Version  int64 // версия сервера после pull
}

// ServerVersion возвращает последнюю известную версию сервера.
func (s *Service) ServerVersion() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.serverVersion
}

// Restore загружает локально сохраненное состояние доски:
// снимок, векторные часы и версию последней синхронизации.
func (s *Service) Restore(ctx context.Context) error {
	snapshot, err := s.snapshotStorage.LoadSnapshot(ctx, s.boardID)
	switch {
	case errors.Is(err, storage.ErrSnapshotNotFound):
		s.logger.Debug("No local snapshot", "board_id", s.boardID)
	case err != nil:
		return fmt.Errorf("failed to load snapshot: %w", err)
	default:
		s.manager.LoadSnapshot(snapshot)
	}

	clock, err := s.metadataStorage.GetClock(ctx, s.boardID)
	if err != nil {
		return fmt.Errorf("failed to load clock: %w", err)
	}
	s.manager.MergeClock(clock)

	version, err := s.metadataStorage.GetLastSyncVersion(ctx, s.boardID)
	if err != nil {
		s.logger.Warn("Failed to get last sync version, using 0", "error", err)
		version = 0
	}

	s.mu.Lock()
	s.serverVersion = version
	s.mu.Unlock()

	s.logger.Debug("Restored board",
		"board_id", s.boardID,
		"objects", len(s.manager.GetObjects()),
		"server_version", version)

	return nil
}

// Persist сохраняет снимок доски, часы и версию сервера.
// Ошибки логируются: локальное состояние восстановимо с сервера.
func (s *Service) Persist(ctx context.Context) {
	if err := s.snapshotStorage.SaveSnapshot(ctx, s.boardID, s.manager.GetSnapshot()); err != nil {
		s.logger.Warn("Failed to save snapshot", "board_id", s.boardID, "error", err)
	}
	if err := s.metadataStorage.SaveClock(ctx, s.boardID, s.manager.ClockSnapshot()); err != nil {
		s.logger.Warn("Failed to save clock", "board_id", s.boardID, "error", err)
	}
	if err := s.metadataStorage.SaveLastSyncVersion(ctx, s.boardID, s.ServerVersion()); err != nil {
		s.logger.Warn("Failed to save last sync version", "board_id", s.boardID, "error", err)
	}
}

// Transmit отправляет пачку операций офлайн-очереди на сервер.
// Подходит как queue.Transmitter. При расхождении версий выполняет
// полную ресинхронизацию и возвращает ошибку, чтобы очередь пометила
// пачку failed и повторила ее позже.
func (s *Service) Transmit(ctx context.Context, ops []json.RawMessage) error {
	req := api.PushRequest{
		ClientID:     s.manager.NodeID(),
		KnownVersion: s.ServerVersion(),
		Operations:   ops,
	}

	resp, err := s.apiClient.PushOperations(ctx, s.boardID, req)
	if err != nil {
		var mismatch *httpClient.VersionMismatchError
		if errors.As(err, &mismatch) {
			if resyncErr := s.resync(ctx, mismatch.ServerVersion, mismatch.Snapshot); resyncErr != nil {
				s.logger.Error("Failed to resync after version mismatch", "error", resyncErr)
			}
		}
		return err
	}

	s.manager.AcknowledgeSynced(operationIDs(ops))
	applied := s.applyRemote(resp.Operations)
	s.advance(resp.Version)
	s.Persist(ctx)

	s.logger.Info("Pushed operations",
		"board_id", s.boardID,
		"sent", len(ops),
		"accepted", resp.Accepted,
		"duplicates", resp.Duplicates,
		"remote_applied", applied,
		"server_version", resp.Version)

	return nil
}

// Pull получает с сервера операции после последней известной версии.
func (s *Service) Pull(ctx context.Context) (*PullResult, error) {
	since := s.ServerVersion()

	resp, err := s.apiClient.GetOperations(ctx, s.boardID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to pull operations: %w", err)
	}

	// Сервер моложе клиента: история потеряна, нужна полная ресинхронизация
	if resp.Version < since {
		if err := s.Resync(ctx); err != nil {
			return nil, err
		}
		return &PullResult{Version: s.ServerVersion()}, nil
	}

	result := &PullResult{
		Received: len(resp.Operations),
		Applied:  s.applyRemote(resp.Operations),
		Version:  resp.Version,
	}

	s.advance(resp.Version)
	s.Persist(ctx)

	s.logger.Info("Pulled operations",
		"board_id", s.boardID,
		"received", result.Received,
		"applied", result.Applied,
		"server_version", result.Version)

	return result, nil
}

// Resync загружает полный снимок сервера и заменяет им локальное состояние.
func (s *Service) Resync(ctx context.Context) error {
	resp, err := s.apiClient.GetSnapshot(ctx, s.boardID)
	if err != nil {
		return fmt.Errorf("failed to get snapshot: %w", err)
	}
	return s.resync(ctx, resp.Version, resp)
}

func (s *Service) resync(ctx context.Context, serverVersion int64, resp *api.SnapshotResponse) error {
	snapshot, err := snapshotFromAPI(resp)
	if err != nil {
		return err
	}

	s.manager.HandleVersionMismatch(serverVersion, snapshot)

	s.mu.Lock()
	s.serverVersion = serverVersion
	s.mu.Unlock()

	s.Persist(ctx)
	return nil
}

// HandleRealtime применяет операцию, полученную по realtime-каналу.
// Пропуск версий означает потерянные сообщения, они догружаются через Pull.
func (s *Service) HandleRealtime(ctx context.Context, msg *api.RealtimeMessage) error {
	if msg.Type != api.RealtimeOperation {
		return nil
	}

	known := s.ServerVersion()
	if msg.Version > known+1 {
		s.logger.Debug("Realtime gap detected, pulling",
			"board_id", s.boardID,
			"known_version", known,
			"message_version", msg.Version)
		_, err := s.Pull(ctx)
		return err
	}

	applied := s.applyRemote([]json.RawMessage{msg.Operation})
	if msg.Version == known+1 {
		s.advance(msg.Version)
	}
	if applied > 0 {
		s.Persist(ctx)
	}
	return nil
}

// applyRemote применяет операции других реплик, возвращает количество примененных
func (s *Service) applyRemote(raw []json.RawMessage) int {
	ops, err := decodeOperations(raw)
	if err != nil {
		s.logger.Warn("Failed to decode remote operations", "board_id", s.boardID, "error", err)
		return 0
	}

	applied := 0
	for _, op := range ops {
		if s.manager.ApplyOperation(op, false) {
			applied++
		}
	}
	return applied
}

// advance сдвигает известную версию сервера вперед
func (s *Service) advance(version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if version > s.serverVersion {
		s.serverVersion = version
	}
}
