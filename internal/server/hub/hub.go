// Package hub рассылает принятые сервером операции подписчикам доски по websocket.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/boardsync/internal/server/metrics"
	"github.com/iudanet/boardsync/pkg/api"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Hub держит websocket-подписчиков, сгруппированных по доскам
type Hub struct {
	broker   Broker
	logger   *slog.Logger
	boards   map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	mu       sync.RWMutex
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	boardID string
}

// New creates a hub on top of the broker
func New(broker Broker, logger *slog.Logger) *Hub {
	return &Hub{
		broker: broker,
		logger: logger,
		boards: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run доставляет сообщения брокера локальным подписчикам до отмены ctx
func (h *Hub) Run(ctx context.Context) error {
	return h.broker.Run(ctx, h.deliver)
}

// Broadcast публикует принятую операцию всем подписчикам доски
func (h *Hub) Broadcast(ctx context.Context, boardID string, version int64, op json.RawMessage) error {
	payload, err := json.Marshal(api.RealtimeMessage{
		Type:      api.RealtimeOperation,
		BoardID:   boardID,
		Operation: op,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal realtime message: %w", err)
	}

	return h.broker.Publish(ctx, boardID, payload)
}

// Subscribers количество подписчиков доски на этом экземпляре
func (h *Hub) Subscribers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.boards[boardID])
}

// ServeWS переводит запрос в websocket и подписывает его на доску.
// Возвращается сразу, соединение обслуживают отдельные горутины.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, boardID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		boardID: boardID,
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)

	return nil
}

// Close закрывает все соединения
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for boardID, clients := range h.boards {
		for c := range clients {
			close(c.send)
			metrics.WebsocketConnections.Dec()
		}
		delete(h.boards, boardID)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.boards[c.boardID]
	if !ok {
		clients = make(map[*client]struct{})
		h.boards[c.boardID] = clients
	}
	clients[c] = struct{}{}
	metrics.WebsocketConnections.Inc()

	h.logger.Debug("Client subscribed", "board_id", c.boardID, "subscribers", len(clients))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(c)
}

// removeLocked удаляет клиента; повторный вызов безопасен
func (h *Hub) removeLocked(c *client) {
	clients, ok := h.boards[c.boardID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}

	delete(clients, c)
	close(c.send)
	metrics.WebsocketConnections.Dec()
	if len(clients) == 0 {
		delete(h.boards, c.boardID)
	}

	h.logger.Debug("Client unsubscribed", "board_id", c.boardID, "subscribers", len(clients))
}

// deliver раздает сообщение подписчикам. Клиент с переполненным буфером
// отключается: он догонит пропущенное через pull после переподключения.
func (h *Hub) deliver(boardID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.boards[boardID] {
		select {
		case c.send <- payload:
			metrics.RealtimeMessagesTotal.WithLabelValues("delivered").Inc()
		default:
			metrics.RealtimeMessagesTotal.WithLabelValues("dropped").Inc()
			h.logger.Warn("Slow realtime client, disconnecting", "board_id", boardID)
			h.removeLocked(c)
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// клиенты только слушают, входящие сообщения игнорируются
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
