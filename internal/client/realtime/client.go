// Package realtime поддерживает websocket-соединение клиента с сервером доски.
// Состояние соединения служит источником online/offline для офлайн-очереди.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/iudanet/boardsync/pkg/api"
)

const (
	// pongWait время ожидания ping от сервера до разрыва соединения
	pongWait = 60 * time.Second
	// writeWait время на запись контрольного кадра
	writeWait = 10 * time.Second
)

// Handler обрабатывает сообщения realtime-канала.
type Handler interface {
	HandleRealtime(ctx context.Context, msg *api.RealtimeMessage) error
}

// ConnectionListener получает переходы online/offline.
type ConnectionListener interface {
	HandleOnline(ctx context.Context)
	HandleOffline()
}

//go:generate moq -out handler_mock.go . Handler ConnectionListener

// Client держит websocket-соединение с переподключением по экспоненциальной задержке.
type Client struct {
	handler    Handler
	logger     *slog.Logger
	dialer     *websocket.Dialer
	newBackOff func() backoff.BackOff
	url        string
	online     atomic.Bool
}

// Option настраивает Client
type Option func(*Client)

// WithBackOff задает фабрику политики переподключения.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = newBackOff }
}

// NewClient создает realtime-клиент для доски. serverURL - базовый http(s) адрес сервера.
func NewClient(serverURL, boardID string, handler Handler, logger *slog.Logger, opts ...Option) (*Client, error) {
	wsURL, err := BoardURL(serverURL, boardID)
	if err != nil {
		return nil, err
	}

	c := &Client{
		url:     wsURL,
		handler: handler,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// BoardURL строит websocket-адрес доски из базового адреса сервера.
func BoardURL(serverURL, boardID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server url: unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/boards/" + url.PathEscape(boardID) + "/ws"
	return u.String(), nil
}

// URL возвращает websocket-адрес
func (c *Client) URL() string {
	return c.url
}

// Online сообщает, установлено ли соединение. Подходит как queue.NetworkStatus.
func (c *Client) Online() bool {
	return c.online.Load()
}

// Run подключается и читает сообщения до отмены ctx, переподключаясь после
// обрывов. listener получает переходы online/offline (может быть nil).
func (c *Client) Run(ctx context.Context, listener ConnectionListener) error {
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			return err
		}

		c.online.Store(true)
		c.logger.Info("Realtime connected", "url", c.url)
		if listener != nil {
			listener.HandleOnline(ctx)
		}

		err = c.readLoop(ctx, conn)

		c.online.Store(false)
		if listener != nil {
			listener.HandleOffline()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("Realtime connection lost", "url", c.url, "error", err)
	}
}

// connect устанавливает соединение, повторяя попытки до успеха или отмены ctx
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn

	operation := func() error {
		ws, resp, err := c.dialer.DialContext(ctx, c.url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		conn = ws
		return nil
	}

	notify := func(err error, next time.Duration) {
		c.logger.Debug("Realtime dial failed, retrying", "url", c.url, "error", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return conn, nil
}

// readLoop читает сообщения, пока соединение живо
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg api.RealtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Failed to decode realtime message", "error", err)
			continue
		}

		if err := c.handler.HandleRealtime(ctx, &msg); err != nil {
			c.logger.Warn("Failed to handle realtime message",
				"type", msg.Type,
				"version", msg.Version,
				"error", err)
		}
	}
}
