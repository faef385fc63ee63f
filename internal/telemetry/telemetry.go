package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/session"
)

// Measurement names.
const (
	MeasurementMessage = "device_message"
	MeasurementSession = "device_session"
)

// PointWriter queues time-series points. *influxdb.Client satisfies it.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// Recorder turns gateway events into InfluxDB points.
//
// One device_message point is written per data frame and one
// device_session point per registration and disconnection.
type Recorder struct {
	writer        PointWriter
	storePayloads bool

	written atomic.Uint64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPayloads stores the raw message text as a field on device_message
// points. Off by default; payloads are unbounded and often high volume.
func WithPayloads() Option {
	return func(r *Recorder) { r.storePayloads = true }
}

// NewRecorder returns a Recorder writing to w.
func NewRecorder(w PointWriter, opts ...Option) *Recorder {
	r := &Recorder{writer: w}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleEvent implements gateway.Observer.
func (r *Recorder) HandleEvent(ev session.Event) {
	if ev.Identity == nil {
		return
	}
	id := ev.Identity

	switch ev.Type {
	case session.EventData:
		fields := map[string]any{"bytes": len(ev.Payload)}
		if r.storePayloads {
			fields["payload"] = ev.Payload
		}
		r.write(MeasurementMessage, map[string]string{"imei": id.IMEI}, fields, ev.Timestamp)

	case session.EventRegistered:
		r.write(MeasurementSession,
			map[string]string{"imei": id.IMEI, "event": string(ev.Type), "fver": id.FirmwareVersion},
			map[string]any{"csq": id.SignalQuality, "iccid": id.ICCID},
			ev.Timestamp)

	case session.EventDisconnected:
		r.write(MeasurementSession,
			map[string]string{"imei": id.IMEI, "event": string(ev.Type)},
			map[string]any{"duration_s": ev.Duration.Seconds(), "reason": ev.Reason},
			ev.Timestamp)
	}
}

func (r *Recorder) write(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	r.writer.WritePointWithTime(measurement, tags, fields, ts)
	r.written.Add(1)
}

// Written returns the number of points queued so far.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}
