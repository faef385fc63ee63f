package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

// HeartbeatToken is the keep-alive message devices send when idle.
const HeartbeatToken = "HEARTBEAT"

// logFileMode is the permission for device log files.
const logFileMode = 0640

// Phase is the lifecycle position of a session. Phases only move forward.
type Phase int

// Session phases.
const (
	PhaseAwaitingRegistration Phase = iota
	PhaseRegistered
	PhaseTerminating
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingRegistration:
		return "awaiting_registration"
	case PhaseRegistered:
		return "registered"
	case PhaseTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Registry is the part of the online registry a session needs.
// *device.Registry satisfies it.
type Registry interface {
	Insert(id device.Identity) error
	Remove(imei string) bool
}

// Logger defines the logging interface used by sessions.
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

// Config holds per-session settings.
type Config struct {
	// OutputDir is where the per-device log files live. It must exist.
	OutputDir string

	// Heartbeat ends a registered session after this long without input.
	// Zero disables the check.
	Heartbeat time.Duration

	// WriteTimeout bounds each command write to the device. Zero disables it.
	WriteTimeout time.Duration

	// Framing is config.FramingLine or config.FramingRaw.
	Framing string

	// MaxMessageSize caps a line in line framing.
	MaxMessageSize int
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the session logger.
func WithLogger(l Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithEventSink sets the receiver for lifecycle events.
func WithEventSink(sink EventSink) Option {
	return func(h *Handler) { h.emit = sink }
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(h *Handler) { h.id = id }
}

// Handler owns one device connection from accept to teardown.
//
// The caller drives it through Verify, Register and Run, and must call
// Close exactly once when done, whatever happened:
//
//	defer h.Close()
//	id, err := h.Verify(ctx)
//	...
//	err = h.Register(id)
//	...
//	err = h.Run()
//
// Close is the single teardown path: it closes the log file, then the
// socket, then removes the registry entry this session inserted.
//
// A Handler is driven by one goroutine. Run starts one extra goroutine
// that only reads from the socket.
type Handler struct {
	id       string
	conn     net.Conn
	sub      *command.Subscription
	registry Registry
	cfg      Config
	logger   Logger
	emit     EventSink

	reader    frameReader
	readerErr error
	phase     Phase
	identity  *device.Identity
	logFile   *os.File
	inserted  bool
	startedAt time.Time
	err       error

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Handler for conn. sub must be a fresh bus subscription
// taken when the connection was accepted; the handler closes it.
func New(conn net.Conn, sub *command.Subscription, registry Registry, cfg Config, opts ...Option) *Handler {
	h := &Handler{
		id:        uuid.NewString(),
		conn:      conn,
		sub:       sub,
		registry:  registry,
		cfg:       cfg,
		logger:    noopLogger{},
		emit:      discardEvents,
		phase:     PhaseAwaitingRegistration,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.reader, h.readerErr = newFrameReader(conn, cfg.Framing, cfg.MaxMessageSize)
	return h
}

// ID returns the session ID.
func (h *Handler) ID() string { return h.id }

// RemoteAddr returns the device's address.
func (h *Handler) RemoteAddr() string {
	if addr := h.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Phase returns the current lifecycle phase.
func (h *Handler) Phase() Phase { return h.phase }

// Identity returns the registered identity, if any.
func (h *Handler) Identity() (device.Identity, bool) {
	if h.identity == nil {
		return device.Identity{}, false
	}
	return *h.identity, true
}

// Err returns the reason the session ended, or nil while it is running.
func (h *Handler) Err() error { return h.err }

// String renders the session for log lines.
func (h *Handler) String() string {
	imei := "unregistered"
	if h.identity != nil {
		imei = h.identity.IMEI
	}
	return fmt.Sprintf("session[addr=%s, imei=%s]", h.RemoteAddr(), imei)
}

// Verify reads until the device sends its identity document.
//
// Heartbeats and blank messages before the identity are skipped. The
// deadline and cancellation of ctx are applied to the socket, so a silent
// device cannot hold Verify open past them.
//
// Returns:
//   - device.Identity: The parsed identity
//   - error: ErrVerifyTimeout, ErrPeerClosed, a wrapped device.ErrInvalidIdentity,
//     or an I/O error
func (h *Handler) Verify(ctx context.Context) (device.Identity, error) {
	if h.phase != PhaseAwaitingRegistration {
		return device.Identity{}, h.fail(ErrClosed)
	}
	if h.readerErr != nil {
		return device.Identity{}, h.fail(h.readerErr)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = h.conn.SetReadDeadline(deadline)
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = h.conn.SetReadDeadline(time.Now())
	})
	defer func() {
		// A started AfterFunc must land before the reset, not after it.
		if !stop() {
			<-fired
		}
		_ = h.conn.SetReadDeadline(time.Time{})
	}()

	for {
		msg, err := h.reader.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
				return device.Identity{}, h.fail(ErrVerifyTimeout)
			}
			return device.Identity{}, h.fail(readError(err))
		}

		msg = bytes.TrimSpace(msg)
		if len(msg) == 0 || string(msg) == HeartbeatToken {
			continue
		}

		id, err := device.ParseIdentity(msg)
		if err != nil {
			return device.Identity{}, h.fail(err)
		}
		return id, nil
	}
}

// Register opens the device log and inserts id into the online registry.
//
// On failure nothing is left in the registry; the caller still calls Close.
func (h *Handler) Register(id device.Identity) error {
	if h.phase != PhaseAwaitingRegistration {
		return h.fail(ErrClosed)
	}

	path := filepath.Join(h.cfg.OutputDir, id.IMEI)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode) //nolint:gosec // imei validated as a single path element
	if err != nil {
		return h.fail(fmt.Errorf("opening device log: %w", err))
	}
	h.logFile = f
	h.identity = &id

	if err := h.registry.Insert(id); err != nil {
		return h.fail(err)
	}
	h.inserted = true
	h.phase = PhaseRegistered

	h.logger.Info("device registered", "imei", id.IMEI, "iccid", id.ICCID, "fver", id.FirmwareVersion, "csq", id.SignalQuality)
	h.publish(Event{Type: EventRegistered})
	return nil
}

// frame is one result from the socket reader goroutine.
type frame struct {
	data []byte
	err  error
}

// Run serves a registered device until the session ends.
//
// Each iteration handles exactly one event, preferring device input over
// commands over the heartbeat alarm. It returns the termination reason.
func (h *Handler) Run() error {
	if h.phase != PhaseRegistered {
		return h.fail(ErrNotRegistered)
	}

	frames := make(chan frame)
	go h.readLoop(frames)

	var alarm <-chan time.Time
	var timer *time.Timer
	if h.cfg.Heartbeat > 0 {
		timer = time.NewTimer(h.cfg.Heartbeat)
		defer timer.Stop()
		alarm = timer.C
	}
	rearm := func() {
		if timer != nil {
			timer.Reset(h.cfg.Heartbeat)
		}
	}

	for {
		select {
		case f := <-frames:
			if err := h.handleFrame(f); err != nil {
				return h.fail(err)
			}
			rearm()
			continue
		default:
		}

		select {
		case <-h.sub.Ready():
			if err := h.handleCommand(); err != nil {
				return h.fail(err)
			}
			continue
		default:
		}

		select {
		case f := <-frames:
			if err := h.handleFrame(f); err != nil {
				return h.fail(err)
			}
			rearm()
		case <-h.sub.Ready():
			if err := h.handleCommand(); err != nil {
				return h.fail(err)
			}
		case <-alarm:
			// Input that raced the alarm still counts.
			select {
			case f := <-frames:
				if err := h.handleFrame(f); err != nil {
					return h.fail(err)
				}
				rearm()
				continue
			default:
			}
			h.logger.Warn("device timed out", "imei", h.identity.IMEI, "heartbeat", h.cfg.Heartbeat)
			return h.fail(ErrHeartbeatTimeout)
		}
	}
}

// readLoop forwards socket messages until an error or Close.
func (h *Handler) readLoop(out chan<- frame) {
	for {
		data, err := h.reader.Next()
		select {
		case out <- frame{data: data, err: err}:
		case <-h.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// handleFrame processes one device message.
func (h *Handler) handleFrame(f frame) error {
	if f.err != nil {
		return readError(f.err)
	}

	msg := bytes.TrimSpace(f.data)
	if len(msg) == 0 {
		return nil
	}
	if string(msg) == HeartbeatToken {
		h.logger.Debug("heartbeat", "imei", h.identity.IMEI)
		return nil
	}

	line := make([]byte, 0, len(msg)+40) //nolint:mnd // timestamp prefix
	line = time.Now().UTC().AppendFormat(line, time.RFC3339Nano)
	line = append(line, ' ')
	line = append(line, msg...)
	line = append(line, '\n')

	if _, err := h.logFile.Write(line); err != nil {
		return fmt.Errorf("writing device log: %w", err)
	}

	h.logger.Debug("data received", "imei", h.identity.IMEI, "bytes", len(msg))
	h.publish(Event{Type: EventData, Payload: string(msg)})
	return nil
}

// handleCommand takes at most one item from the subscription.
func (h *Handler) handleCommand() error {
	cmd, err := h.sub.TryRecv()
	var lagged *command.LaggedError
	switch {
	case err == nil:
	case errors.Is(err, command.ErrEmpty):
		return nil
	case errors.As(err, &lagged):
		h.logger.Warn("command subscription lagged", "imei", h.identity.IMEI, "skipped", lagged.Skipped)
		h.publish(Event{Type: EventLagged, Skipped: lagged.Skipped})
		return nil
	case errors.Is(err, command.ErrClosed):
		return ErrBusClosed
	default:
		return err
	}

	if !cmd.IsFor(h.identity.IMEI) {
		return nil
	}

	if h.cfg.WriteTimeout > 0 {
		_ = h.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	}
	if _, err := io.WriteString(h.conn, cmd.Payload+"\n"); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}

	h.logger.Info("command delivered", "imei", h.identity.IMEI, "command", cmd.String())
	h.publish(Event{Type: EventCommand, Payload: cmd.Payload})
	return nil
}

// Close tears the session down. It is safe to call more than once.
//
// Order: sync and close the log file, close the socket, leave the
// command bus, remove the registry entry. Errors are logged, not returned.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		wasRegistered := h.inserted
		h.phase = PhaseTerminating
		close(h.done)

		if h.logFile != nil {
			if err := h.logFile.Sync(); err != nil {
				h.logger.Warn("syncing device log", "error", err)
			}
			if err := h.logFile.Close(); err != nil {
				h.logger.Warn("closing device log", "error", err)
			}
			h.logFile = nil
		}

		_ = h.conn.Close()
		h.sub.Close()

		if h.inserted {
			h.registry.Remove(h.identity.IMEI)
			h.inserted = false
		}

		reason := "closed"
		if h.err != nil {
			reason = h.err.Error()
		}
		if wasRegistered {
			h.logger.Info("device disconnected", "imei", h.identity.IMEI, "reason", reason)
			h.publish(Event{Type: EventDisconnected, Reason: reason, Err: h.err, Duration: time.Since(h.startedAt)})
			return
		}
		h.logger.Info("connection rejected", "reason", reason)
		h.publish(Event{Type: EventRejected, Reason: reason, Err: h.err, Duration: time.Since(h.startedAt)})
	})
}

// fail records the first termination reason and returns err.
func (h *Handler) fail(err error) error {
	if h.err == nil {
		h.err = err
	}
	return err
}

// publish stamps and emits an event.
func (h *Handler) publish(ev Event) {
	ev.SessionID = h.id
	ev.RemoteAddr = h.RemoteAddr()
	if h.identity != nil {
		id := *h.identity
		ev.Identity = &id
	}
	ev.Timestamp = time.Now().UTC()
	h.emit(ev)
}

// readError maps a read failure onto a termination reason.
func readError(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrPeerClosed
	}
	return err
}
