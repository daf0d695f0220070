// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/ChatNovelEngine/internal/services"
	"github.com/Corphon/ChatNovelEngine/internal/utils"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 生产环境应进行更严格的来源检查
		return true
	},
}

// wsClient 表示一个已认证用户的WebSocket连接
type wsClient struct {
	conn     *websocket.Conn
	userID   string
	send     chan []byte
	closed   int32
	lastPing time.Time
}

// Close 安全关闭客户端连接
func (c *wsClient) Close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.conn.Close()
	}
}

// IsClosed 检查连接是否已关闭
func (c *wsClient) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// TurnHub pushes finished turns to each user's live connections.
// Implements services.Notifier; delivery is best effort and never
// blocks the turn pipeline.
type TurnHub struct {
	clients     map[string]map[*wsClient]bool // userID -> connections
	register    chan *wsClient
	unregister  chan *wsClient
	mu          sync.RWMutex
	pingTimeout time.Duration
	logger      *utils.Logger
}

// NewTurnHub 创建通知中心并启动主循环
func NewTurnHub() *TurnHub {
	hub := &TurnHub{
		clients:     make(map[string]map[*wsClient]bool),
		register:    make(chan *wsClient, 64),
		unregister:  make(chan *wsClient, 64),
		pingTimeout: 60 * time.Second,
		logger:      utils.GetLogger(),
	}
	go hub.run()
	return hub
}

var _ services.Notifier = (*TurnHub)(nil)

// run 运行主循环
func (h *TurnHub) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ticker.C:
			h.dropExpired()
		}
	}
}

func (h *TurnHub) addClient(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*wsClient]bool)
	}
	h.clients[client.userID][client] = true
	client.lastPing = time.Now()
}

func (h *TurnHub) removeClient(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[client.userID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.userID)
		}
	}
	client.Close()
}

func (h *TurnHub) dropExpired() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.clients {
		for client := range conns {
			if client.IsClosed() || time.Since(client.lastPing) > h.pingTimeout {
				delete(conns, client)
				client.Close()
			}
		}
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
}

// NotifyTurn sends a finished turn to every live connection of a user.
// Full send queues drop the message rather than stall.
func (h *TurnHub) NotifyTurn(userID string, result *services.TurnResult) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":      "turn",
		"data":      result,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("serialize turn notification", map[string]interface{}{"error": err.Error()})
		return
	}

	h.mu.RLock()
	conns := make([]*wsClient, 0, len(h.clients[userID]))
	for client := range h.clients[userID] {
		if !client.IsClosed() {
			conns = append(conns, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range conns {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("turn notification dropped, client queue full", map[string]interface{}{
				"user_id": userID,
			})
		}
	}
}

// Status 返回连接统计，用于运维观察
func (h *TurnHub) Status() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return map[string]interface{}{
		"users":       len(h.clients),
		"connections": total,
	}
}

// Serve upgrades the request and runs the connection's pumps.
func (h *TurnHub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &wsClient{
		conn:     conn,
		userID:   userID,
		send:     make(chan []byte, 32),
		lastPing: time.Now(),
	}
	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
	return nil
}

func (h *TurnHub) writePump(client *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *TurnHub) readPump(client *wsClient) {
	defer func() {
		h.unregister <- client
	}()

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(h.pingTimeout))
	client.conn.SetPongHandler(func(string) error {
		client.lastPing = time.Now()
		client.conn.SetReadDeadline(time.Now().Add(h.pingTimeout))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
		client.lastPing = time.Now()
	}
}
