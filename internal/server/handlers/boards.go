package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/boards"
	"github.com/iudanet/boardsync/internal/server/metrics"
	"github.com/iudanet/boardsync/internal/server/storage"
	"github.com/iudanet/boardsync/internal/validation"
	"github.com/iudanet/boardsync/pkg/api"
)

// maxPushBody ограничение тела запроса с операциями
const maxPushBody = 4 << 20

// BoardRegistry выдает авторитетные реплики досок
type BoardRegistry interface {
	Board(ctx context.Context, boardID string) (*boards.Board, error)
}

// Broadcaster рассылает принятые операции подписчикам доски
type Broadcaster interface {
	Broadcast(ctx context.Context, boardID string, version int64, op json.RawMessage) error
	ServeWS(w http.ResponseWriter, r *http.Request, boardID string) error
}

// BoardHandler обслуживает синхронизацию досок
type BoardHandler struct {
	registry    BoardRegistry
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewBoardHandler creates a new board sync handler
func NewBoardHandler(registry BoardRegistry, broadcaster Broadcaster, logger *slog.Logger) *BoardHandler {
	return &BoardHandler{
		registry:    registry,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Register регистрирует маршруты досок. pushMiddleware оборачивает только прием операций.
func (h *BoardHandler) Register(router *mux.Router, pushMiddleware ...mux.MiddlewareFunc) {
	var push http.Handler = http.HandlerFunc(h.PushOperations)
	for i := len(pushMiddleware) - 1; i >= 0; i-- {
		push = pushMiddleware[i](push)
	}

	router.Handle("/api/v1/boards/{boardID}/operations", push).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/boards/{boardID}/operations", h.GetOperations).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/boards/{boardID}/snapshot", h.GetSnapshot).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/boards/{boardID}/ws", h.ServeWS).Methods(http.MethodGet)
}

// PushOperations обрабатывает POST /api/v1/boards/{boardID}/operations
func (h *BoardHandler) PushOperations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	board, ok := h.board(w, r)
	if !ok {
		return
	}

	var req api.PushRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&req); err != nil {
		h.logger.Warn("Invalid push request", "board_id", board.ID(), "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if req.ClientID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "client_id is required", "")
		return
	}
	if req.KnownVersion < 0 {
		writeError(w, h.logger, http.StatusBadRequest, "known_version must not be negative", "")
		return
	}

	ops, err := decodeOperations(req.Operations)
	if err != nil {
		h.logger.Warn("Invalid operations", "board_id", board.ID(), "client_id", req.ClientID, "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "invalid operation", err.Error())
		return
	}

	result, err := board.Push(ctx, req.ClientID, req.KnownVersion, ops)
	if err != nil {
		var mismatch *boards.VersionMismatchError
		if errors.As(err, &mismatch) {
			metrics.VersionMismatchesTotal.Inc()
			h.writeMismatch(w, mismatch)
			return
		}
		if errors.Is(err, storage.ErrInvalidOperation) {
			writeError(w, h.logger, http.StatusBadRequest, "invalid operation", err.Error())
			return
		}
		h.logger.Error("Failed to push operations", "board_id", board.ID(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error", "")
		return
	}

	metrics.OperationsTotal.WithLabelValues("accepted").Add(float64(len(result.Accepted)))
	metrics.OperationsTotal.WithLabelValues("duplicate").Add(float64(result.Duplicates))

	for _, stored := range result.Accepted {
		payload, err := stored.Operation.ToJSON()
		if err != nil {
			h.logger.Error("Failed to encode accepted operation", "op_id", stored.Operation.ID, "error", err)
			continue
		}
		if err := h.broadcaster.Broadcast(ctx, board.ID(), stored.Seq, payload); err != nil {
			h.logger.Warn("Failed to broadcast operation", "board_id", board.ID(), "op_id", stored.Operation.ID, "error", err)
		}
	}

	missed, err := encodeStored(result.Missed)
	if err != nil {
		h.logger.Error("Failed to encode missed operations", "board_id", board.ID(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error", "")
		return
	}

	h.logger.Info("Operations pushed",
		"board_id", board.ID(),
		"client_id", req.ClientID,
		"accepted", len(result.Accepted),
		"duplicates", result.Duplicates,
		"missed", len(missed),
		"version", result.Version)

	writeJSON(w, h.logger, http.StatusOK, api.PushResponse{
		Operations: missed,
		Version:    result.Version,
		Accepted:   len(result.Accepted),
		Duplicates: result.Duplicates,
	})
}

// GetOperations обрабатывает GET /api/v1/boards/{boardID}/operations?since=N
func (h *BoardHandler) GetOperations(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(w, r)
	if !ok {
		return
	}

	var since int64
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		var err error
		since, err = strconv.ParseInt(sinceStr, 10, 64)
		if err != nil || since < 0 {
			h.logger.Warn("Invalid since parameter", "since", sinceStr)
			writeError(w, h.logger, http.StatusBadRequest, "invalid since parameter", "")
			return
		}
	}

	stored, version, err := board.Since(r.Context(), since)
	if err != nil {
		h.logger.Error("Failed to read operations", "board_id", board.ID(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error", "")
		return
	}

	ops, err := encodeStored(stored)
	if err != nil {
		h.logger.Error("Failed to encode operations", "board_id", board.ID(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error", "")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, api.DiffResponse{
		Operations: ops,
		Version:    version,
	})
}

// GetSnapshot обрабатывает GET /api/v1/boards/{boardID}/snapshot
func (h *BoardHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	board, ok := h.board(w, r)
	if !ok {
		return
	}

	snapshot, err := board.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("Failed to read snapshot", "board_id", board.ID(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error", "")
		return
	}

	resp, err := snapshotToAPI(snapshot)
	if err != nil {
		h.logger.Error("Failed to encode snapshot", "board_id", board.ID(), "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error", "")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

// ServeWS обрабатывает GET /api/v1/boards/{boardID}/ws
func (h *BoardHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	boardID := mux.Vars(r)["boardID"]
	if err := validation.ValidateBoardID(boardID); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid board id", err.Error())
		return
	}

	// Upgrader сам отвечает клиенту при ошибке
	if err := h.broadcaster.ServeWS(w, r, boardID); err != nil {
		h.logger.Warn("Websocket upgrade failed", "board_id", boardID, "error", err)
	}
}

// board валидирует boardID из пути и загружает доску.
// При ошибке ответ уже отправлен.
func (h *BoardHandler) board(w http.ResponseWriter, r *http.Request) (*boards.Board, bool) {
	boardID := mux.Vars(r)["boardID"]
	if err := validation.ValidateBoardID(boardID); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid board id", err.Error())
		return nil, false
	}

	board, err := h.registry.Board(r.Context(), boardID)
	if err != nil {
		h.logger.Error("Failed to load board", "board_id", boardID, "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error", "")
		return nil, false
	}
	return board, true
}

func (h *BoardHandler) writeMismatch(w http.ResponseWriter, mismatch *boards.VersionMismatchError) {
	snapshot, err := snapshotToAPI(mismatch.Snapshot)
	if err != nil {
		h.logger.Error("Failed to encode snapshot", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error", "")
		return
	}

	writeJSON(w, h.logger, http.StatusConflict, api.VersionMismatchResponse{
		Error:    "version mismatch",
		Version:  mismatch.ServerVersion,
		Snapshot: *snapshot,
	})
}

func decodeOperations(raw []json.RawMessage) ([]*models.Operation, error) {
	ops := make([]*models.Operation, 0, len(raw))
	for i, data := range raw {
		op, err := models.OperationFromJSON(data)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		if op.ObjectID != "" {
			if err := validation.ValidateObjectID(op.ObjectID); err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func encodeStored(stored []*storage.StoredOperation) ([]json.RawMessage, error) {
	ops := make([]json.RawMessage, 0, len(stored))
	for _, s := range stored {
		data, err := s.Operation.ToJSON()
		if err != nil {
			return nil, err
		}
		ops = append(ops, data)
	}
	return ops, nil
}

func snapshotToAPI(snapshot *models.Snapshot) (*api.SnapshotResponse, error) {
	resp := &api.SnapshotResponse{
		Objects:    make([]json.RawMessage, 0, len(snapshot.Objects)),
		Tombstones: snapshot.Tombstones,
		Version:    snapshot.Version,
	}
	if resp.Tombstones == nil {
		resp.Tombstones = []string{}
	}

	for _, obj := range snapshot.Objects {
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to encode object %s: %w", obj.ID, err)
		}
		resp.Objects = append(resp.Objects, data)
	}
	return resp, nil
}
