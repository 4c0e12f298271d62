package relay

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"goalfeed/internal/events"
	"goalfeed/internal/telemetry"
)

const (
	clientSendBuf = 256
	writeDeadline = 5 * time.Second
	pongWait      = 30 * time.Second
	pingInterval  = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type relayClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Server rebroadcasts goal events to connected WebSocket clients. Register
// it on the fanout; it implements events.Consumer.
type Server struct {
	mu      sync.Mutex
	clients map[*relayClient]struct{}
}

func NewServer() *Server {
	return &Server{
		clients: make(map[*relayClient]struct{}),
	}
}

// OnGoal is called on the dispatcher's goroutine. It serializes the event
// and enqueues it to each client's send channel (non-blocking).
func (s *Server) OnGoal(evt events.GoalEvent) error {
	data, err := MarshalGoal(evt)
	if err != nil {
		return fmt.Errorf("relay: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			telemetry.Warnf("relay: dropping event for slow client")
		}
	}
	return nil
}

// HandleWS is the HTTP handler for WebSocket upgrade requests.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("relay: upgrade failed: %v", err)
		return
	}

	c := &relayClient{
		conn: conn,
		send: make(chan []byte, clientSendBuf),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	telemetry.Infof("relay: client connected from %s", r.RemoteAddr)

	go s.writePump(c)
	go s.readPump(c)
}

// writePump drains the client's send channel and writes to the WS connection.
// It owns the client lifecycle: on exit it removes the client from the map
// (so OnGoal never sends to a stale channel) and closes the connection.
func (s *Server) writePump(c *relayClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.removeClient(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				telemetry.Warnf("relay: write error: %v", err)
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive by reading pongs / close frames.
// No upstream messages are expected from relay clients.
// On exit it signals writePump via c.done (never closes c.send).
func (s *Server) readPump(c *relayClient) {
	defer close(c.done)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (s *Server) removeClient(c *relayClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	telemetry.Infof("relay: client disconnected")
}

// ListenAndServe starts the relay WebSocket server.
func (s *Server) ListenAndServe(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)

	addr := fmt.Sprintf(":%d", port)
	telemetry.Infof("relay: server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
