package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ETC11111/app-serial-sub001/internal/cmdqueue"
	"github.com/ETC11111/app-serial-sub001/internal/commandlog"
	"github.com/ETC11111/app-serial-sub001/internal/dispatch"
	"github.com/ETC11111/app-serial-sub001/internal/gateway"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/config"
	"github.com/ETC11111/app-serial-sub001/internal/infrastructure/logging"
	"github.com/ETC11111/app-serial-sub001/internal/metrics"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the server's collaborators. Gateway and Dispatcher are
// required.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Gateway    *gateway.Gateway
	Dispatcher *dispatch.Dispatcher
	Commands   commandlog.Repository    // optional: enables command history and stats
	Queue      *cmdqueue.Queue          // optional: enables the pending command queue
	Metrics    *metrics.Metrics         // optional: enables /metrics
	Health     map[string]HealthChecker // optional: reported by /api/v1/health
	Version    string
}

// Server is the gateway's HTTP and WebSocket server.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	gateway    *gateway.Gateway
	dispatcher *dispatch.Dispatcher
	commands   commandlog.Repository
	queue      *cmdqueue.Queue
	metrics    *metrics.Metrics
	health     map[string]HealthChecker
	version    string
	startedAt  time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	wsCfg := deps.WS
	if wsCfg.Path == "" {
		wsCfg.Path = "/ws"
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      wsCfg,
		logger:     deps.Logger,
		gateway:    deps.Gateway,
		dispatcher: deps.Dispatcher,
		commands:   deps.Commands,
		queue:      deps.Queue,
		metrics:    deps.Metrics,
		health:     deps.Health,
		version:    deps.Version,
		startedAt:  time.Now(),
		baseCtx:    context.Background(),
	}, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srvCtx, cancel := context.WithCancel(ctx)

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.baseCtx = srvCtx
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("API server starting", "address", ln.Addr().String(), "ws_path", s.wsCfg.Path)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close disconnects WebSocket clients and shuts the listener down.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	// Hijacked WebSocket connections are not covered by Shutdown.
	s.gateway.Registry().CloseAll()

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is listening.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

func (s *Server) connContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}
