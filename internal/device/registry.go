package device

import (
	"slices"
	"sync"
)

// Logger defines the logging interface used by the device package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the set of devices that are registered and connected right now.
//
// Entries are Identity snapshots keyed by IMEI, kept in registration order.
// At most one entry exists per IMEI.
//
// All public methods are thread-safe. The lock is held only for the copy,
// insert or remove itself.
type Registry struct {
	mu      sync.RWMutex
	entries []Identity
	logger  Logger
}

// NewRegistry creates an empty online registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// List returns a snapshot of the online devices.
// The slice is a copy; later registry changes are not reflected in it.
func (r *Registry) List() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Identity, len(r.entries))
	copy(out, r.entries)
	return out
}

// Find returns the online entry for imei, if any.
func (r *Registry) Find(imei string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(imei); i >= 0 {
		return r.entries[i], true
	}
	return Identity{}, false
}

// Len returns the number of online devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Insert adds id to the registry.
//
// Returns ErrAlreadyOnline, leaving the registry unchanged, when an entry
// with the same IMEI exists.
func (r *Registry) Insert(id Identity) error {
	r.mu.Lock()
	if r.indexOf(id.IMEI) >= 0 {
		r.mu.Unlock()
		return ErrAlreadyOnline
	}
	r.entries = append(r.entries, id)
	n := len(r.entries)
	r.mu.Unlock()

	r.logger.Debug("device online", "imei", id.IMEI, "online", n)
	return nil
}

// Remove deletes the entry for imei and reports whether one existed.
// Removing an absent IMEI is a no-op.
func (r *Registry) Remove(imei string) bool {
	r.mu.Lock()
	i := r.indexOf(imei)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	r.entries = slices.Delete(r.entries, i, i+1)
	n := len(r.entries)
	r.mu.Unlock()

	r.logger.Debug("device offline", "imei", imei, "online", n)
	return true
}

// indexOf returns the position of imei or -1. Caller must hold r.mu.
func (r *Registry) indexOf(imei string) int {
	return slices.IndexFunc(r.entries, func(id Identity) bool {
		return id.IMEI == imei
	})
}
