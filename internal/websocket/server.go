package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/salvatore0626/PiZeroMetarMap/pkg/logger"
)

// Message types pushed to clients
const (
	MessageTypeConditionsUpdated = "conditions_updated"
	MessageTypeFetchFailed       = "fetch_failed"
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Client represents a connected WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan *Message
	server *Server
	mu     sync.Mutex
	closed bool
}

// Server is a broadcast-only WebSocket hub. Clients receive condition
// push messages; anything they send is read and discarded to keep the
// connection's control frames flowing.
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	mu         sync.RWMutex
}

// NewServer creates a new WebSocket server
func NewServer(log *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 16),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger: log.Named("web-socket"),
	}
}

// Run processes register/unregister/broadcast events until Stop is called
func (s *Server) Run() {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.removeClient(client)

		case message := <-s.broadcast:
			s.deliver(message)

		case <-s.done:
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.close()
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients
func (s *Server) Stop() {
	close(s.done)
}

// HandleConnection upgrades an HTTP request to a WebSocket client
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	s.logger.Debug("Client connected", logger.String("remote_addr", r.RemoteAddr))

	client := &Client{
		conn:   conn,
		send:   make(chan *Message, 64),
		server: s,
	}

	s.register <- client

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for all connected clients
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	case <-s.done:
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) deliver(message *Message) {
	s.mu.RLock()
	var stalled []*Client
	for client := range s.clients {
		select {
		case client.send <- message:
		default:
			// Client is not draining its queue, drop it
			stalled = append(stalled, client)
		}
	}
	s.mu.RUnlock()

	for _, client := range stalled {
		s.removeClient(client)
	}
}

func (s *Server) removeClient(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		client.close()
	}
	clientCount := len(s.clients)
	s.mu.Unlock()
	s.logger.Debug("Client unregistered", logger.Int("client_count", clientCount))
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump drains inbound frames so the connection's close handshake and
// pings work; client payloads are ignored.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Debug("WebSocket read error", logger.Error(err))
			}
			return
		}
	}
}

// writePump serializes queued messages onto the connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		data, err := json.Marshal(message)
		if err != nil {
			c.server.logger.Error("Failed to marshal message", logger.Error(err))
			continue
		}

		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	// Channel closed by the hub
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
