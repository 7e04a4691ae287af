package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"invitely/pkg/editor"
	"invitely/pkg/models"
	"invitely/pkg/performance"
)

const (
	// PushInterval throttles project pushes to websocket clients
	PushInterval = 100 * time.Millisecond

	writeWait      = 10 * time.Second
	sendBufferSize = 8
	hubListenerKey = "ws-hub"
)

// Message is what the hub sends to clients
type Message struct {
	Type       string          `json:"type"`
	Project    *models.Project `json:"project,omitempty"`
	ViewerMode bool            `json:"viewerMode"`
}

// Hub pushes committed projects to connected browsers
type Hub struct {
	editor   *editor.Editor
	upgrader websocket.Upgrader
	throttle *performance.ThrottledExecutor
	log      *log.Logger

	mutex   sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewHub creates a hub and subscribes it to the editor
func NewHub(ed *editor.Editor, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	h := &Hub{
		editor: ed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		throttle: performance.NewThrottledExecutor(PushInterval),
		log:      logger,
		clients:  make(map[*websocket.Conn]chan []byte),
	}
	ed.Subscribe(hubListenerKey, func(_, _ models.Project, _ map[string]interface{}) {
		h.throttle.Execute(h.broadcastLatest)
	})
	return h
}

// ServeHTTP upgrades the connection and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Printf("upgrade failed: %v", err)
		return
	}

	send := make(chan []byte, sendBufferSize)
	h.mutex.Lock()
	h.clients[conn] = send
	h.mutex.Unlock()

	go h.writePump(conn, send)
	if msg, err := h.snapshot("project"); err == nil {
		h.enqueue(conn, send, msg)
	}
	h.readPump(conn)
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Close disconnects every client and stops listening to the editor
func (h *Hub) Close() {
	h.editor.Unsubscribe(hubListenerKey)
	h.throttle.Stop()

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn, send := range h.clients {
		close(send)
		delete(h.clients, conn)
	}
}

func (h *Hub) snapshot(kind string) ([]byte, error) {
	p := h.editor.Project()
	return json.Marshal(Message{Type: kind, Project: &p, ViewerMode: h.editor.ViewerMode()})
}

func (h *Hub) broadcastLatest() {
	msg, err := h.snapshot("project")
	if err != nil {
		h.log.Printf("encode project: %v", err)
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn, send := range h.clients {
		h.enqueueLocked(conn, send, msg)
	}
}

func (h *Hub) enqueue(conn *websocket.Conn, send chan []byte, msg []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[conn]; ok {
		h.enqueueLocked(conn, send, msg)
	}
}

// enqueueLocked drops clients that cannot keep up
func (h *Hub) enqueueLocked(conn *websocket.Conn, send chan []byte, msg []byte) {
	select {
	case send <- msg:
	default:
		h.log.Printf("client %s too slow, disconnecting", conn.RemoteAddr())
		close(send)
		delete(h.clients, conn)
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if send, ok := h.clients[conn]; ok {
		close(send)
		delete(h.clients, conn)
	}
}

// readPump only drains control frames; clients edit through the REST API
func (h *Hub) readPump(conn *websocket.Conn) {
	defer h.remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Printf("read: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, send chan []byte) {
	defer conn.Close()
	for msg := range send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Printf("write: %v", err)
			return
		}
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
