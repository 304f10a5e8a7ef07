package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ETC11111/app-serial-sub001/internal/gateway"
)

// WebSocket defaults used when configuration leaves a value at zero.
const (
	defaultSendBuffer     = 256
	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// wsSocket adapts a gorilla connection to gateway.Socket. Outbound messages
// go through a bounded queue drained by writePump.
type wsSocket struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newWSSocket(conn *websocket.Conn, buffer int) *wsSocket {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &wsSocket{conn: conn, send: make(chan []byte, buffer)}
}

// Enqueue implements gateway.Socket.
func (s *wsSocket) Enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Close implements gateway.Socket. The writer flushes what is queued, sends
// a close frame and closes the connection.
func (s *wsSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	return nil
}

// upgrader accepts same-host requests without an Origin header and any
// origin the CORS list allows.
func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
}

// handleWebSocket upgrades the connection and runs the client's read loop
// on the handler goroutine until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sock := newWSSocket(conn, s.wsCfg.SendBuffer)
	client := s.gateway.Connect(sock)

	go s.writePump(sock)
	s.readPump(client.ID(), conn)
}

// wsTimings returns the keepalive settings with zero values replaced by the
// package defaults. A client that sends nothing for pingInterval+pongWait is
// dropped.
func (s *Server) wsTimings() (pingInterval, pongWait time.Duration, maxSize int64) {
	pingInterval = time.Duration(s.wsCfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	pongWait = time.Duration(s.wsCfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = defaultPongTimeout
	}
	maxSize = int64(s.wsCfg.MaxMessageSize)
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	return pingInterval, pongWait, maxSize
}

// readPump hands every text frame to the gateway in receipt order.
func (s *Server) readPump(clientID string, conn *websocket.Conn) {
	defer s.gateway.Disconnect(clientID)

	pingInterval, pongWait, maxSize := s.wsTimings()
	conn.SetReadLimit(maxSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	ctx := s.connContext()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "client_id", clientID, "error", err)
			} else {
				s.logger.Debug("websocket closed", "client_id", clientID, "error", err)
			}
			return
		}
		// Any client message counts as liveness, even without protocol pongs.
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.gateway.HandleClientMessage(ctx, clientID, message)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (s *Server) writePump(sock *wsSocket) {
	pingInterval, pongWait, _ := s.wsTimings()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sock.conn.Close()
	}()

	for {
		select {
		case message, ok := <-sock.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			sock.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if !ok {
				//nolint:errcheck // Best-effort close message
				sock.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sock.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			sock.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := sock.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ gateway.Socket = (*wsSocket)(nil)
