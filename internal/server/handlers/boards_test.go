package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardsync/internal/models"
	"github.com/iudanet/boardsync/internal/server/boards"
	"github.com/iudanet/boardsync/internal/server/storage/sqlite"
	"github.com/iudanet/boardsync/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type broadcast struct {
	boardID string
	op      json.RawMessage
	version int64
}

// fakeBroadcaster запоминает разосланные операции
type fakeBroadcaster struct {
	err        error
	broadcasts []broadcast
	wsBoards   []string
	mu         sync.Mutex
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, boardID string, version int64, op json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.broadcasts = append(f.broadcasts, broadcast{boardID: boardID, version: version, op: op})
	return f.err
}

func (f *fakeBroadcaster) ServeWS(w http.ResponseWriter, r *http.Request, boardID string) error {
	f.mu.Lock()
	f.wsBoards = append(f.wsBoards, boardID)
	f.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
	return nil
}

type failingRegistry struct{}

func (failingRegistry) Board(ctx context.Context, boardID string) (*boards.Board, error) {
	return nil, errors.New("disk on fire")
}

type testServer struct {
	router      *mux.Router
	registry    *boards.Registry
	broadcaster *fakeBroadcaster
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	registry := boards.NewRegistry(s, setupTestLogger())
	t.Cleanup(registry.Close)

	broadcaster := &fakeBroadcaster{}
	router := mux.NewRouter()
	NewBoardHandler(registry, broadcaster, setupTestLogger()).Register(router)

	return &testServer{router: router, registry: registry, broadcaster: broadcaster}
}

func (s *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func rawOp(t *testing.T, id string, opType models.OpType, objectID, userID string, ts int64, data map[string]any) json.RawMessage {
	t.Helper()

	op, err := models.NewOperation(opType, objectID, data,
		models.WithID(id),
		models.WithTimestamp(ts),
		models.WithUserID(userID),
		models.WithVectorClock(map[string]int64{userID: 1}),
	)
	require.NoError(t, err)

	payload, err := op.ToJSON()
	require.NoError(t, err)
	return payload
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestBoardHandler_Push(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", api.PushRequest{
		ClientID:     "client-a",
		KnownVersion: 0,
		Operations: []json.RawMessage{
			rawOp(t, "op-1", models.OpAdd, "obj1", "client-a", 100, map[string]any{"type": "rect"}),
			rawOp(t, "op-2", models.OpMove, "obj1", "client-a", 200, map[string]any{"x": 10.0, "y": 20.0}),
		},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decodeBody[api.PushResponse](t, w)
	assert.Equal(t, int64(2), resp.Version)
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 0, resp.Duplicates)
	assert.Empty(t, resp.Operations)

	require.Len(t, srv.broadcaster.broadcasts, 2)
	assert.Equal(t, "board-1", srv.broadcaster.broadcasts[0].boardID)
	assert.Equal(t, int64(1), srv.broadcaster.broadcasts[0].version)
	assert.Equal(t, int64(2), srv.broadcaster.broadcasts[1].version)

	op, err := models.OperationFromJSON(srv.broadcaster.broadcasts[1].op)
	require.NoError(t, err)
	assert.Equal(t, "op-2", op.ID)
}

func TestBoardHandler_Push_ReturnsMissedFromOtherClients(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", api.PushRequest{
		ClientID:   "client-a",
		Operations: []json.RawMessage{rawOp(t, "op-a", models.OpAdd, "a", "client-a", 100, nil)},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", api.PushRequest{
		ClientID:   "client-b",
		Operations: []json.RawMessage{rawOp(t, "op-b", models.OpAdd, "b", "client-b", 150, nil)},
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[api.PushResponse](t, w)
	assert.Equal(t, int64(2), resp.Version)
	require.Len(t, resp.Operations, 1)

	missed, err := models.OperationFromJSON(resp.Operations[0])
	require.NoError(t, err)
	assert.Equal(t, "op-a", missed.ID)
}

func TestBoardHandler_Push_Duplicates(t *testing.T) {
	srv := newTestServer(t)
	req := api.PushRequest{
		ClientID:   "client-a",
		Operations: []json.RawMessage{rawOp(t, "op-1", models.OpAdd, "obj1", "client-a", 100, nil)},
	}

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", req).Code)

	req.KnownVersion = 1
	w := srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", req)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[api.PushResponse](t, w)
	assert.Equal(t, 0, resp.Accepted)
	assert.Equal(t, 1, resp.Duplicates)
	assert.Equal(t, int64(1), resp.Version)
	assert.Len(t, srv.broadcaster.broadcasts, 1, "duplicates are not broadcast again")
}

func TestBoardHandler_Push_VersionMismatch(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", api.PushRequest{
		ClientID:   "client-a",
		Operations: []json.RawMessage{rawOp(t, "op-1", models.OpAdd, "obj1", "client-a", 100, map[string]any{"color": "red"})},
	}).Code)

	w := srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", api.PushRequest{
		ClientID:     "client-b",
		KnownVersion: 42,
		Operations:   []json.RawMessage{rawOp(t, "op-2", models.OpAdd, "obj2", "client-b", 200, nil)},
	})
	require.Equal(t, http.StatusConflict, w.Code)

	resp := decodeBody[api.VersionMismatchResponse](t, w)
	assert.Equal(t, "version mismatch", resp.Error)
	assert.Equal(t, int64(1), resp.Version)
	assert.Equal(t, int64(1), resp.Snapshot.Version)
	require.Len(t, resp.Snapshot.Objects, 1)

	obj := &models.BoardObject{}
	require.NoError(t, json.Unmarshal(resp.Snapshot.Objects[0], obj))
	assert.Equal(t, "obj1", obj.ID)
	assert.Equal(t, "red", obj.String("color"))

	b, err := srv.registry.Board(context.Background(), "board-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Version(), "rejected batch must not be applied")
}

func TestBoardHandler_Push_BadRequests(t *testing.T) {
	tests := []struct {
		body   any
		name   string
		target string
	}{
		{name: "invalid board id", target: "/api/v1/boards/bad.id/operations", body: api.PushRequest{ClientID: "c"}},
		{name: "malformed json", target: "/api/v1/boards/b/operations", body: "{not json"},
		{name: "missing client id", target: "/api/v1/boards/b/operations", body: api.PushRequest{}},
		{name: "negative known version", target: "/api/v1/boards/b/operations", body: api.PushRequest{ClientID: "c", KnownVersion: -1}},
		{
			name:   "unknown operation type",
			target: "/api/v1/boards/b/operations",
			body: api.PushRequest{ClientID: "c", Operations: []json.RawMessage{
				json.RawMessage(`{"id":"x","type":"explode","objectId":"o","data":{},"timestamp":1,"userId":"c","vectorClock":{},"version":1}`),
			}},
		},
		{
			name:   "operation without id",
			target: "/api/v1/boards/b/operations",
			body: api.PushRequest{ClientID: "c", Operations: []json.RawMessage{
				json.RawMessage(`{"id":"","type":"add","objectId":"o","data":{},"timestamp":1,"userId":"c","vectorClock":{},"version":1}`),
			}},
		},
		{
			name:   "add without object id",
			target: "/api/v1/boards/b/operations",
			body: api.PushRequest{ClientID: "c", Operations: []json.RawMessage{
				json.RawMessage(`{"id":"x","type":"add","objectId":null,"data":{},"timestamp":1,"userId":"c","vectorClock":{},"version":1}`),
			}},
		},
		{
			name:   "clear with object id",
			target: "/api/v1/boards/b/operations",
			body: api.PushRequest{ClientID: "c", Operations: []json.RawMessage{
				json.RawMessage(`{"id":"x","type":"clear","objectId":"abc","data":{},"timestamp":1,"userId":"c","vectorClock":{},"version":1}`),
			}},
		},
		{
			name:   "invalid op rejects whole batch",
			target: "/api/v1/boards/b/operations",
			body: api.PushRequest{ClientID: "c", Operations: []json.RawMessage{
				json.RawMessage(`{"id":"ok","type":"add","objectId":"o","data":{},"timestamp":1,"userId":"c","vectorClock":{},"version":1}`),
				json.RawMessage(`{"id":"bad","type":"move","data":{},"timestamp":2,"userId":"c","vectorClock":{},"version":1}`),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)

			w := srv.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			resp := decodeBody[api.ErrorResponse](t, w)
			assert.NotEmpty(t, resp.Error)
			assert.Empty(t, srv.broadcaster.broadcasts)

			snapshot := decodeBody[api.SnapshotResponse](t, srv.do(t, http.MethodGet, "/api/v1/boards/b/snapshot", nil))
			assert.Equal(t, int64(0), snapshot.Version, "nothing is appended")
			assert.Empty(t, snapshot.Tombstones)
		})
	}
}

func TestBoardHandler_Push_BroadcastFailureDoesNotFailPush(t *testing.T) {
	srv := newTestServer(t)
	srv.broadcaster.err = errors.New("redis down")

	w := srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", api.PushRequest{
		ClientID:   "client-a",
		Operations: []json.RawMessage{rawOp(t, "op-1", models.OpAdd, "obj1", "client-a", 100, nil)},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeBody[api.PushResponse](t, w).Accepted)
}

func TestBoardHandler_GetOperations(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", api.PushRequest{
		ClientID: "client-a",
		Operations: []json.RawMessage{
			rawOp(t, "op-1", models.OpAdd, "obj1", "client-a", 100, nil),
			rawOp(t, "op-2", models.OpUpdate, "obj1", "client-a", 200, map[string]any{"color": "blue"}),
			rawOp(t, "op-3", models.OpDelete, "obj1", "client-a", 300, nil),
		},
	}).Code)

	tests := []struct {
		name         string
		query        string
		expectedIDs  []string
		expectedCode int
		expectedVer  int64
	}{
		{name: "no since returns everything", query: "", expectedCode: http.StatusOK, expectedIDs: []string{"op-1", "op-2", "op-3"}, expectedVer: 3},
		{name: "since 1", query: "?since=1", expectedCode: http.StatusOK, expectedIDs: []string{"op-2", "op-3"}, expectedVer: 3},
		{name: "up to date", query: "?since=3", expectedCode: http.StatusOK, expectedIDs: []string{}, expectedVer: 3},
		{name: "ahead of server", query: "?since=10", expectedCode: http.StatusOK, expectedIDs: []string{}, expectedVer: 3},
		{name: "not a number", query: "?since=abc", expectedCode: http.StatusBadRequest},
		{name: "negative", query: "?since=-1", expectedCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodGet, "/api/v1/boards/board-1/operations"+tt.query, nil)
			require.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode != http.StatusOK {
				return
			}

			resp := decodeBody[api.DiffResponse](t, w)
			assert.Equal(t, tt.expectedVer, resp.Version)

			ids := make([]string, 0, len(resp.Operations))
			for _, raw := range resp.Operations {
				op, err := models.OperationFromJSON(raw)
				require.NoError(t, err)
				ids = append(ids, op.ID)
			}
			assert.Equal(t, tt.expectedIDs, ids)
		})
	}
}

func TestBoardHandler_GetOperations_UnknownBoard(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/v1/boards/fresh/operations?since=0", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[api.DiffResponse](t, w)
	assert.Equal(t, int64(0), resp.Version)
	assert.Empty(t, resp.Operations)
}

func TestBoardHandler_GetSnapshot(t *testing.T) {
	srv := newTestServer(t)

	require.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/boards/board-1/operations", api.PushRequest{
		ClientID: "client-a",
		Operations: []json.RawMessage{
			rawOp(t, "op-1", models.OpAdd, "keep", "client-a", 100, map[string]any{"type": "text"}),
			rawOp(t, "op-2", models.OpAdd, "gone", "client-a", 110, nil),
			rawOp(t, "op-3", models.OpDelete, "gone", "client-a", 120, nil),
		},
	}).Code)

	w := srv.do(t, http.MethodGet, "/api/v1/boards/board-1/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[api.SnapshotResponse](t, w)
	assert.Equal(t, int64(3), resp.Version)
	assert.Contains(t, resp.Tombstones, "gone")
	require.Len(t, resp.Objects, 1)

	obj := &models.BoardObject{}
	require.NoError(t, json.Unmarshal(resp.Objects[0], obj))
	assert.Equal(t, "keep", obj.ID)
}

func TestBoardHandler_GetSnapshot_EmptyBoard(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/v1/boards/empty/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"objects":[],"tombstones":[],"version":0}`, w.Body.String())
}

func TestBoardHandler_RegistryFailure(t *testing.T) {
	router := mux.NewRouter()
	NewBoardHandler(failingRegistry{}, &fakeBroadcaster{}, setupTestLogger()).Register(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/boards/b/snapshot", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "internal server error", resp.Error)
}

func TestBoardHandler_ServeWS(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/v1/boards/board-1/ws", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"board-1"}, srv.broadcaster.wsBoards)

	w = srv.do(t, http.MethodGet, "/api/v1/boards/bad.id/ws", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, srv.broadcaster.wsBoards, 1)
}

func TestBoardHandler_Register_PushMiddleware(t *testing.T) {
	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	blocked := 0
	deny := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			blocked++
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}

	router := mux.NewRouter()
	NewBoardHandler(boards.NewRegistry(s, setupTestLogger()), &fakeBroadcaster{}, setupTestLogger()).Register(router, deny)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/boards/b/operations", bytes.NewBufferString("{}")))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/boards/b/operations", nil))
	assert.Equal(t, http.StatusOK, w.Code, "reads are not wrapped")
	assert.Equal(t, 1, blocked)
}
