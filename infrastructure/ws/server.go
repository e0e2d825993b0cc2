package ws

import (
	"chat-relay/observability"
	"chat-relay/services"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
)

type Config struct {
	ConnectionBufferSize int
	WriteTimeout         time.Duration
	PingInterval         time.Duration
	// AllowedOrigins are host patterns accepted besides the request host.
	AllowedOrigins []string
	// InsecureSkipVerify disables origin checks. Development only.
	InsecureSkipVerify bool
}

// Server upgrades HTTP requests to WebSocket connections and runs one
// conversation per connection.
type Server struct {
	log     *slog.Logger
	service services.IChatService
	monitor *observability.Monitor
	cfg     Config

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

func NewServer(log *slog.Logger, service services.IChatService, monitor *observability.Monitor, cfg Config) *Server {
	if cfg.ConnectionBufferSize <= 0 {
		cfg.ConnectionBufferSize = 32
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Server{
		log:     log,
		service: service,
		monitor: monitor,
		cfg:     cfg,
		conns:   make(map[*Conn]struct{}),
	}
}

// Handle is the gin entrypoint of the WebSocket endpoint.
func (s *Server) Handle(c *gin.Context) {
	s.ServeHTTP(c.Writer, c.Request)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.cfg.AllowedOrigins,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	})
	if err != nil {
		// Accept already wrote the HTTP error
		s.log.Warn("websocket upgrade rejected", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(wsConn, s.log, s.cfg.ConnectionBufferSize, s.cfg.WriteTimeout)
	if !s.track(conn) {
		conn.close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.untrack(conn)
	s.serve(r.Context(), conn)
}

// serve blocks until the peer leaves, then runs the disconnect transition.
func (s *Server) serve(parent context.Context, conn *Conn) {
	s.monitor.IncrConnectionsOpened()
	defer s.monitor.IncrConnectionsClosed()
	conn.log.Debug("connection opened")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		if err := conn.writeLoop(ctx); err != nil {
			conn.log.Warn("write failed, closing connection", "error", err)
			conn.close(websocket.StatusInternalError, "write failed")
		}
	}()
	go func() {
		defer loops.Done()
		if err := conn.pingLoop(ctx, s.cfg.PingInterval); err != nil {
			conn.log.Info("peer stopped answering pings", "error", err)
			conn.close(websocket.StatusGoingAway, "ping timeout")
		}
	}()

	conversation := services.NewConversation(s.log, s.service, conn)
	for {
		_, frame, err := conn.ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				conn.log.Debug("connection closed by peer")
			default:
				conn.log.Debug("read loop ended", "error", err)
			}
			break
		}
		conversation.HandleFrame(ctx, frame)
	}

	conversation.Close(context.WithoutCancel(ctx))
	conn.close(websocket.StatusNormalClosure, "")
	cancel()
	loops.Wait()
	conn.log.Debug("connection closed")
}

func (s *Server) track(conn *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn *Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Count returns the number of open connections, joined or not.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown refuses new connections, closes the live ones with "going away"
// and waits for their handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	s.log.Info("closing websocket connections", "count", len(conns))
	for _, conn := range conns {
		go conn.close(websocket.StatusGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
