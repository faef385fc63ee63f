package gateway

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/session"
)

// Default timing values.
const (
	// defaultWriteTimeout bounds a single command write to a device.
	defaultWriteTimeout = 10 * time.Second

	// acceptBackoffMin and acceptBackoffMax bound the pause after a failed Accept.
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = time.Second

	// outputDirMode is the permission for the log directory.
	outputDirMode = 0750
)

// Logger defines the logging interface used by the gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds gateway settings.
type Config struct {
	// Address is the TCP listen address, e.g. "0.0.0.0:9000".
	Address string

	// OutputDir holds the per-device log files. Created at Start.
	OutputDir string

	// Heartbeat is the liveness interval for registered sessions. Zero disables it.
	Heartbeat time.Duration

	// VerifyTimeout bounds the registration handshake. Zero means no deadline.
	VerifyTimeout time.Duration

	// WriteTimeout bounds each command write. Defaults to 10s.
	WriteTimeout time.Duration

	// BusCapacity is the command history kept for slow sessions.
	BusCapacity int

	// Framing is config.FramingLine or config.FramingRaw.
	Framing string

	// MaxMessageSize caps one line in line framing.
	MaxMessageSize int

	// EventQueueSize is the observer queue length.
	EventQueueSize int
}

// ConfigFrom extracts the gateway settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Address:        cfg.Gateway.Address,
		OutputDir:      cfg.Gateway.OutputDir,
		Heartbeat:      cfg.GetHeartbeat(),
		VerifyTimeout:  cfg.GetVerifyTimeout(),
		BusCapacity:    cfg.Gateway.BusCapacity,
		Framing:        cfg.Gateway.Framing,
		MaxMessageSize: cfg.Gateway.MaxMessageSize,
	}
}

// Stats contains gateway counters.
type Stats struct {
	ConnectionsAccepted uint64
	SessionsActive      int64
	CommandsSent        uint64
	CommandsUnheard     uint64
	EventsDelivered     uint64
	EventsDropped       uint64
}

// Gateway accepts device connections and runs one session per connection.
//
// It owns the listener, the command bus, the online registry and the
// observer dispatcher. Lifetimes of all four are tied to the Gateway.
//
// Thread Safety:
//   - ListOnline, GetLog, SendCommand and Stats are safe for concurrent use.
type Gateway struct {
	cfg      Config
	registry *device.Registry
	bus      *command.Bus
	events   *dispatcher
	logger   Logger

	pendingObservers []Observer

	// baseCtx is cancelled by Close so handshakes in progress give up.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	listener  net.Listener
	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	sessions  sync.WaitGroup
	loopDone  chan struct{}

	accepted atomic.Uint64
	active   atomic.Int64
	sent     atomic.Uint64
	unheard  atomic.Uint64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger. Sessions log through it too.
func WithLogger(l Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithObserver registers an event observer before start.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		g.pendingObservers = append(g.pendingObservers, o)
	}
}

// New creates a Gateway. Nothing listens until Start.
func New(cfg Config, opts ...Option) *Gateway {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:        cfg,
		registry:   device.NewRegistry(),
		bus:        command.NewBus(cfg.BusCapacity),
		logger:     noopLogger{},
		baseCtx:    baseCtx,
		cancelBase: cancel,
		loopDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.registry.SetLogger(g.logger)
	g.events = newDispatcher(cfg.EventQueueSize, g.logger)
	for _, o := range g.pendingObservers {
		g.events.add(o)
	}
	g.pendingObservers = nil
	return g
}

// AddObserver registers an event observer. Safe to call at any time.
func (g *Gateway) AddObserver(o Observer) {
	g.events.add(o)
}

// Start creates the output directory, binds the listener and begins
// accepting connections in the background.
//
// Either failure is fatal and returned. Cancelling ctx has the same effect
// as Close.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := os.MkdirAll(g.cfg.OutputDir, outputDirMode); err != nil {
		g.started.Store(false)
		return fmt.Errorf("%w: %w", ErrOutputDir, err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.cfg.Address)
	if err != nil {
		g.started.Store(false)
		return fmt.Errorf("%w: %w", ErrListen, err)
	}
	g.listener = ln

	g.logger.Info("gateway listening",
		"address", ln.Addr().String(),
		"output_dir", g.cfg.OutputDir,
		"framing", g.cfg.Framing,
		"heartbeat", g.cfg.Heartbeat,
		"verify_timeout", g.cfg.VerifyTimeout,
	)

	go g.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			g.Close() //nolint:errcheck,gosec // shutdown path, error already logged
		case <-g.loopDone:
		}
	}()
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// acceptLoop accepts until the listener closes. It never waits on a session.
func (g *Gateway) acceptLoop() {
	defer close(g.loopDone)

	backoff := time.Duration(0)
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			if g.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = acceptBackoffMin
			} else {
				backoff = min(backoff*2, acceptBackoffMax)
			}
			g.logger.Warn("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		g.accepted.Add(1)
		g.sessions.Add(1)
		go g.serve(conn, g.bus.Subscribe())
	}
}

// serve runs one connection through its whole lifecycle.
func (g *Gateway) serve(conn net.Conn, sub *command.Subscription) {
	defer g.sessions.Done()

	g.active.Add(1)
	defer g.active.Add(-1)

	log := withFields(g.logger, "remote_addr", conn.RemoteAddr().String())

	h := session.New(conn, sub, g.registry, session.Config{
		OutputDir:      g.cfg.OutputDir,
		Heartbeat:      g.cfg.Heartbeat,
		WriteTimeout:   g.cfg.WriteTimeout,
		Framing:        g.cfg.Framing,
		MaxMessageSize: g.cfg.MaxMessageSize,
	}, session.WithLogger(log), session.WithEventSink(g.events.publish))
	defer h.Close()

	g.events.publish(session.Event{
		Type:       session.EventConnected,
		SessionID:  h.ID(),
		RemoteAddr: h.RemoteAddr(),
		Timestamp:  time.Now().UTC(),
	})
	log.Debug("connection accepted", "session_id", h.ID())

	ctx := g.baseCtx
	if g.cfg.VerifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.VerifyTimeout)
		defer cancel()
	}

	id, err := h.Verify(ctx)
	if err != nil {
		log.Warn("device verification failed", "error", err)
		return
	}
	if err := h.Register(id); err != nil {
		log.Warn("device registration failed", "imei", id.IMEI, "error", err)
		return
	}
	if err := h.Run(); err != nil {
		log.Debug("session ended", "imei", id.IMEI, "reason", err)
	}
}

// ListOnline returns a snapshot of the registered, connected devices.
func (g *Gateway) ListOnline() []device.Identity {
	return g.registry.List()
}

// IsOnline reports whether imei has a live session.
func (g *Gateway) IsOnline(imei string) bool {
	_, ok := g.registry.Find(imei)
	return ok
}

// GetLog returns the full data log for imei.
//
// A missing log, or an IMEI that could not name a log file, returns
// found=false with no error.
//
// Returns:
//   - string: Log contents
//   - bool: Whether a log exists
//   - error: Only for unexpected read failures
func (g *Gateway) GetLog(imei string) (string, bool, error) {
	if device.ValidateIMEI(imei) != nil {
		return "", false, nil
	}

	data, err := os.ReadFile(filepath.Join(g.cfg.OutputDir, imei))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("reading log for %s: %w", imei, err)
	}
	return string(data), true, nil
}

// SendCommand publishes cmd to every session and reports whether any
// session was subscribed. false is not an error; it means nobody was
// listening at send time.
func (g *Gateway) SendCommand(cmd command.Command) bool {
	cmd = cmd.Normalise()
	n := g.bus.Send(cmd)
	g.sent.Add(1)
	if n == 0 {
		g.unheard.Add(1)
	}

	g.logger.Info("command sent", "command", cmd.String(), "receivers", n)
	g.events.publish(session.Event{
		Type:      session.EventCommandSent,
		Payload:   cmd.String(),
		Receivers: n,
		Timestamp: time.Now().UTC(),
	})
	return n > 0
}

// Stats returns current counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		ConnectionsAccepted: g.accepted.Load(),
		SessionsActive:      g.active.Load(),
		CommandsSent:        g.sent.Load(),
		CommandsUnheard:     g.unheard.Load(),
		EventsDelivered:     g.events.delivered.Load(),
		EventsDropped:       g.events.dropped.Load(),
	}
}

// HealthCheck reports whether the listener is running.
func (g *Gateway) HealthCheck(_ context.Context) error {
	if !g.started.Load() || g.closed.Load() {
		return ErrNotRunning
	}
	return nil
}

// Close stops accepting, closes the command bus so every session ends,
// waits for sessions to tear down, then flushes the observers.
//
// Close is idempotent; concurrent callers all wait for the first to finish.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.closed.Store(true)

		if g.listener != nil {
			if err := g.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				g.closeErr = fmt.Errorf("closing listener: %w", err)
			}
			<-g.loopDone
		}

		g.bus.Close()
		g.cancelBase()
		g.sessions.Wait()
		g.events.close()

		g.logger.Info("gateway stopped", "connections_accepted", g.accepted.Load())
	})
	return g.closeErr
}

// fieldLogger prepends fixed key-value pairs to every entry.
type fieldLogger struct {
	next   Logger
	fields []any
}

// withFields returns a Logger that adds fields to every entry.
func withFields(l Logger, fields ...any) Logger {
	if _, ok := l.(noopLogger); ok {
		return l
	}
	return fieldLogger{next: l, fields: fields}
}

func (f fieldLogger) with(args []any) []any {
	out := make([]any, 0, len(f.fields)+len(args))
	return append(append(out, f.fields...), args...)
}

func (f fieldLogger) Debug(msg string, args ...any) { f.next.Debug(msg, f.with(args)...) }
func (f fieldLogger) Info(msg string, args ...any)  { f.next.Info(msg, f.with(args)...) }
func (f fieldLogger) Warn(msg string, args ...any)  { f.next.Warn(msg, f.with(args)...) }
func (f fieldLogger) Error(msg string, args ...any) { f.next.Error(msg, f.with(args)...) }
