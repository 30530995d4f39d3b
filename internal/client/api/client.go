package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/iudanet/boardsync/pkg/api"
)

//go:generate moq -out client_mock.go . ClientAPI

// ClientAPI определяет операции синхронизации доски с сервером
type ClientAPI interface {
	// PushOperations отправляет пачку операций.
	// Возвращает *VersionMismatchError, если сервер требует полной ресинхронизации.
	PushOperations(ctx context.Context, boardID string, req api.PushRequest) (*api.PushResponse, error)

	// GetOperations возвращает операции доски с версией больше since
	GetOperations(ctx context.Context, boardID string, since int64) (*api.DiffResponse, error)

	// GetSnapshot возвращает полное состояние доски
	GetSnapshot(ctx context.Context, boardID string) (*api.SnapshotResponse, error)

	// Health проверяет доступность сервера
	Health(ctx context.Context) (*api.HealthResponse, error)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	logger     *slog.Logger
	baseURL    string
}

var _ ClientAPI = (*Client)(nil)

// NewClient создает новый API клиент. Запросы проходят через circuit breaker,
// чтобы офлайн-очередь не долбила недоступный сервер.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL: baseURL,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "board-sync-api",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Ответы 4xx и 409 означают, что сервер жив
			return err == nil || clientSide(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return c
}

// PushOperations отправляет пачку операций доски
func (c *Client) PushOperations(ctx context.Context, boardID string, req api.PushRequest) (*api.PushResponse, error) {
	var resp api.PushResponse
	err := c.doRequest(ctx, http.MethodPost, boardPath(boardID, "operations"), req, &resp)
	if err != nil {
		return nil, fmt.Errorf("push operations request failed: %w", err)
	}
	return &resp, nil
}

// GetOperations возвращает операции доски после версии since
func (c *Client) GetOperations(ctx context.Context, boardID string, since int64) (*api.DiffResponse, error) {
	var resp api.DiffResponse
	path := boardPath(boardID, "operations") + "?since=" + strconv.FormatInt(since, 10)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get operations request failed: %w", err)
	}
	return &resp, nil
}

// GetSnapshot возвращает полное состояние доски
func (c *Client) GetSnapshot(ctx context.Context, boardID string) (*api.SnapshotResponse, error) {
	var resp api.SnapshotResponse
	if err := c.doRequest(ctx, http.MethodGet, boardPath(boardID, "snapshot"), nil, &resp); err != nil {
		return nil, fmt.Errorf("get snapshot request failed: %w", err)
	}
	return &resp, nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// BreakerState возвращает состояние circuit breaker (closed, half-open, open)
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

func boardPath(boardID, resource string) string {
	return "/api/v1/boards/" + url.PathEscape(boardID) + "/" + resource
}

// doRequest выполняет HTTP запрос через circuit breaker
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.execute(ctx, method, path, body, result)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrServerUnavailable, err)
	}
	return err
}

func (c *Client) execute(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Сервер требует полной ресинхронизации
	if resp.StatusCode == http.StatusConflict {
		var mismatch api.VersionMismatchResponse
		if err := json.Unmarshal(respBody, &mismatch); err != nil {
			return fmt.Errorf("failed to decode version mismatch response: %w", err)
		}
		return &VersionMismatchError{ServerVersion: mismatch.Version, Snapshot: &mismatch.Snapshot}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			statusErr.Message = errResp.Error
			if errResp.Message != "" {
				statusErr.Message += ": " + errResp.Message
			}
		}
		return statusErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
