package watch

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReloadServer broadcasts regeneration events to websocket clients, so
// editor plugins and dev frontends learn when contract artifacts change.
type ReloadServer struct {
	connections map[*websocket.Conn]bool
	broadcast   chan *ReloadMessage
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	done        chan struct{}
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

// ReloadMessage is one regeneration event.
type ReloadMessage struct {
	Type      string     `json:"type"`      // "building", "generated", "error"
	Timestamp int64      `json:"timestamp"` // Unix timestamp
	Files     []string   `json:"files,omitempty"`
	Artifacts []string   `json:"artifacts,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Duration  float64    `json:"duration,omitempty"` // Milliseconds
}

// ErrorInfo carries the first diagnostic of a failed regeneration.
type ErrorInfo struct {
	Message  string `json:"message"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Code     string `json:"code,omitempty"`
	Phase    string `json:"phase,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// NewReloadServer creates a reload server. logger may be nil.
func NewReloadServer(logger *zap.Logger) *ReloadServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	rs := &ReloadServer{
		connections: make(map[*websocket.Conn]bool),
		broadcast:   make(chan *ReloadMessage, 256),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		log:         logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Same-origin.
					return true
				}
				// Localhost only.
				return strings.HasPrefix(origin, "http://localhost") ||
					strings.HasPrefix(origin, "https://localhost") ||
					strings.HasPrefix(origin, "http://127.0.0.1") ||
					strings.HasPrefix(origin, "https://127.0.0.1")
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	go rs.run()

	return rs
}

// run handles the websocket connection lifecycle.
func (rs *ReloadServer) run() {
	for {
		select {
		case <-rs.done:
			rs.log.Info("reload server shutting down")
			return

		case conn := <-rs.register:
			rs.mutex.Lock()
			rs.connections[conn] = true
			total := len(rs.connections)
			rs.mutex.Unlock()
			rs.log.Info("reload client connected", zap.Int("total", total))

		case conn := <-rs.unregister:
			rs.mutex.Lock()
			if _, ok := rs.connections[conn]; ok {
				delete(rs.connections, conn)
				conn.Close()
			}
			total := len(rs.connections)
			rs.mutex.Unlock()
			rs.log.Info("reload client disconnected", zap.Int("total", total))

		case message := <-rs.broadcast:
			rs.sendToAll(message)
		}
	}
}

// sendToAll sends a message to all connected clients.
func (rs *ReloadServer) sendToAll(message *ReloadMessage) {
	messageJSON, err := json.Marshal(message)
	if err != nil {
		rs.log.Error("failed to marshal reload message", zap.Error(err))
		return
	}

	rs.mutex.RLock()
	var failedConns []*websocket.Conn
	for conn := range rs.connections {
		if err := conn.WriteMessage(websocket.TextMessage, messageJSON); err != nil {
			rs.log.Warn("failed to send reload message", zap.Error(err))
			failedConns = append(failedConns, conn)
		}
	}
	rs.mutex.RUnlock()

	if len(failedConns) > 0 {
		rs.mutex.Lock()
		for _, conn := range failedConns {
			if _, ok := rs.connections[conn]; ok {
				conn.Close()
				delete(rs.connections, conn)
			}
		}
		rs.mutex.Unlock()
	}
}

// HandleWebSocket upgrades HTTP connections to websocket.
func (rs *ReloadServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := rs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rs.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	rs.register <- conn

	go rs.readMessages(conn)
}

// readMessages drains client messages for keepalive.
func (rs *ReloadServer) readMessages(conn *websocket.Conn) {
	defer func() {
		rs.unregister <- conn
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				rs.log.Warn("websocket error", zap.Error(err))
			}
			break
		}
	}
}

// NotifyBuilding announces a regeneration starting for the changed files.
func (rs *ReloadServer) NotifyBuilding(files []string) {
	rs.broadcast <- &ReloadMessage{
		Type:      "building",
		Timestamp: time.Now().Unix(),
		Files:     files,
	}
}

// NotifyGenerated announces a successful regeneration.
func (rs *ReloadServer) NotifyGenerated(artifacts []string, duration time.Duration) {
	rs.broadcast <- &ReloadMessage{
		Type:      "generated",
		Timestamp: time.Now().Unix(),
		Artifacts: artifacts,
		Duration:  float64(duration.Milliseconds()),
	}
}

// NotifyError announces a failed regeneration.
func (rs *ReloadServer) NotifyError(errorInfo *ErrorInfo) {
	rs.broadcast <- &ReloadMessage{
		Type:      "error",
		Timestamp: time.Now().Unix(),
		Error:     errorInfo,
	}
}

// ConnectionCount returns the number of active connections.
func (rs *ReloadServer) ConnectionCount() int {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()
	return len(rs.connections)
}

// Close closes all connections and stops the server.
func (rs *ReloadServer) Close() {
	close(rs.done)

	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	for conn := range rs.connections {
		conn.Close()
	}
	rs.connections = make(map[*websocket.Conn]bool)
}
