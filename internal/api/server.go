package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/audit"
	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Gateway is the subset of *gateway.Gateway the API serves.
type Gateway interface {
	ListOnline() []device.Identity
	GetLog(imei string) (string, bool, error)
	SendCommand(cmd command.Command) bool
	Stats() gateway.Stats
	HealthCheck(ctx context.Context) error
}

// Directory is the persistent device store the API reads and edits.
type Directory interface {
	All() []device.RegisteredDevice
	Find(imei string) (*device.RegisteredDevice, error)
	SetName(imei, name string) (*device.RegisteredDevice, error)
	AddTag(imei, tag string) (*device.RegisteredDevice, error)
	RemoveTag(imei, tag string) (*device.RegisteredDevice, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Gateway   Gateway
	Directory Directory
	Audit     audit.Repository // optional: GET /audit returns 503 without it
	Metrics   http.Handler     // optional: served at /metrics
	Hub       *Hub             // optional: created at Start if nil
	Version   string
}

// Server is the HTTP API server for the gateway.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	gateway   Gateway
	directory Directory
	auditRepo audit.Repository
	metrics   http.Handler
	version   string
	started   time.Time

	server   *http.Server
	listener net.Listener
	hub      *Hub
	tickets  *ticketStore
	cancel   context.CancelFunc // cancels background goroutines on Close()
	wg       sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, ErrMissingLogger
	}
	if deps.Gateway == nil {
		return nil, ErrMissingGateway
	}
	if deps.Directory == nil {
		return nil, ErrMissingDirectory
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		directory: deps.Directory,
		auditRepo: deps.Audit,
		metrics:   deps.Metrics,
		hub:       deps.Hub,
		version:   deps.Version,
		tickets:   newTicketStore(),
		started:   time.Now(),
	}, nil
}

// Hub returns the server's WebSocket hub, creating it if needed. Register
// it with the gateway as an Observer before the gateway starts.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
//
// Binding happens before Start returns so a port conflict is reported to
// the caller. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return ErrAlreadyStarted
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	hub := s.Hub()
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		hub.Run(srvCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.tickets.cleanLoop(srvCtx)
	}()

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		s.wg.Wait()
		return fmt.Errorf("%w %s: %w", ErrListen, addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String(), "auth", s.authEnabled())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return ErrNotStarted
	}

	return nil
}
