package gateway

import (
	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/session"
)

// DirectoryObserver records every successful registration in the
// persistent device directory.
type DirectoryObserver struct {
	dir    *device.Directory
	logger Logger
}

// NewDirectoryObserver returns an Observer that touches dir on registration.
func NewDirectoryObserver(dir *device.Directory, logger Logger) *DirectoryObserver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &DirectoryObserver{dir: dir, logger: logger}
}

// HandleEvent implements Observer.
func (o *DirectoryObserver) HandleEvent(ev session.Event) {
	if ev.Type != session.EventRegistered || ev.Identity == nil {
		return
	}
	if _, err := o.dir.Touch(*ev.Identity); err != nil {
		o.logger.Error("failed to record device in directory", "imei", ev.Identity.IMEI, "error", err)
	}
}
