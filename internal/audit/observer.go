package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/session"
)

const (
	// defaultQueueSize bounds entries waiting to be written.
	defaultQueueSize = 256

	// writeTimeout limits a single insert.
	writeTimeout = 5 * time.Second
)

// Logger is the logging surface used by Observer.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer turns gateway events into audit log entries.
//
// HandleEvent only queues; a single worker does the inserts so a slow disk
// never holds up the gateway's event dispatcher. Entries are dropped when
// the queue is full.
type Observer struct {
	repo   Repository
	logger Logger
	queue  chan *AuditLog

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// NewObserver starts an observer writing to repo. A queueSize below one
// selects the default.
func NewObserver(repo Repository, queueSize int, logger Logger) (*Observer, error) {
	if repo == nil {
		return nil, ErrMissingRepository
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}

	o := &Observer{
		repo:   repo,
		logger: logger,
		queue:  make(chan *AuditLog, queueSize),
		done:   make(chan struct{}),
	}
	go o.run()
	return o, nil
}

// HandleEvent records connection lifecycle and command events. Data,
// per-session command delivery and lag events are not audited.
func (o *Observer) HandleEvent(ev session.Event) {
	entry := entryFor(ev)
	if entry == nil {
		return
	}

	select {
	case o.queue <- entry:
	default:
		o.dropped.Add(1)
		o.logger.Warn("audit queue full, dropping entry", "action", entry.Action, "imei", entry.IMEI)
	}
}

// entryFor maps an event to an audit entry, or nil if it is not audited.
func entryFor(ev session.Event) *AuditLog {
	entry := &AuditLog{
		IMEI:       ev.IMEI(),
		SessionID:  ev.SessionID,
		RemoteAddr: ev.RemoteAddr,
		Source:     SourceDevice,
		CreatedAt:  ev.Timestamp,
	}

	switch ev.Type {
	case session.EventConnected:
		entry.Action = ActionConnect

	case session.EventRegistered:
		entry.Action = ActionRegister
		if id := ev.Identity; id != nil {
			entry.Details = map[string]any{
				"fver":  id.FirmwareVersion,
				"iccid": id.ICCID,
				"csq":   id.SignalQuality,
			}
		}

	case session.EventRejected:
		entry.Action = ActionReject
		entry.Details = reasonDetails(ev)

	case session.EventDisconnected:
		entry.Action = ActionDisconnect
		entry.Details = reasonDetails(ev)
		if entry.Details == nil {
			entry.Details = map[string]any{}
		}
		entry.Details["duration_ms"] = ev.Duration.Milliseconds()

	case session.EventCommandSent:
		entry.Action = ActionCommand
		entry.Source = SourceOperator
		entry.Details = map[string]any{
			"command":   ev.Payload,
			"receivers": ev.Receivers,
		}

	default:
		return nil
	}
	return entry
}

func reasonDetails(ev session.Event) map[string]any {
	if ev.Reason == "" {
		return nil
	}
	return map[string]any{"reason": ev.Reason}
}

func (o *Observer) run() {
	defer close(o.done)
	for entry := range o.queue {
		o.write(entry)
	}
}

func (o *Observer) write(entry *AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := o.repo.Create(ctx, entry); err != nil {
		o.failed.Add(1)
		o.logger.Error("audit write failed", "action", entry.Action, "imei", entry.IMEI, "error", err)
		return
	}
	o.written.Add(1)
}

// Close stops accepting entries and waits for queued ones to be written.
// HandleEvent must not be called after Close.
func (o *Observer) Close() {
	o.closeOnce.Do(func() {
		close(o.queue)
	})
	<-o.done
}

// Stats reports observer counters.
func (o *Observer) Stats() map[string]uint64 {
	return map[string]uint64{
		"written": o.written.Load(),
		"dropped": o.dropped.Load(),
		"failed":  o.failed.Load(),
	}
}
