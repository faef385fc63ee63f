package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/session"
)

type stubStats gateway.Stats

func (s stubStats) Stats() gateway.Stats { return gateway.Stats(s) }

func withIdentity(ev session.Event) session.Event {
	ev.Identity = &device.Identity{IMEI: "123", ICCID: "1", FirmwareVersion: "1"}
	return ev
}

func TestHandleEvent_Counters(t *testing.T) {
	m := New()

	m.HandleEvent(withIdentity(session.Event{Type: session.EventRegistered}))
	m.HandleEvent(withIdentity(session.Event{Type: session.EventData, Payload: "temp=20"}))
	m.HandleEvent(withIdentity(session.Event{Type: session.EventData, Payload: "x"}))
	m.HandleEvent(withIdentity(session.Event{Type: session.EventCommand, Payload: "reboot"}))
	m.HandleEvent(withIdentity(session.Event{Type: session.EventLagged, Skipped: 4}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Registrations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OnlineDevices))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DataFrames))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.DataBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LagEvents))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CommandsSkipped))

	m.HandleEvent(withIdentity(session.Event{Type: session.EventDisconnected, Duration: 3 * time.Second}))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OnlineDevices))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Disconnections))
}

func TestHandleEvent_RejectionReasons(t *testing.T) {
	m := New()

	tests := []struct {
		err  error
		want string
	}{
		{err: fmt.Errorf("%w: missing [iccid]", device.ErrInvalidIdentity), want: reasonIdentity},
		{err: device.ErrAlreadyOnline, want: reasonDuplicate},
		{err: session.ErrVerifyTimeout, want: reasonTimeout},
		{err: session.ErrPeerClosed, want: reasonClosed},
		{err: nil, want: reasonOther},
	}
	for _, tt := range tests {
		m.HandleEvent(session.Event{Type: session.EventRejected, Err: tt.err})
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(tt.want)), tt.want)
	}
}

func TestRegisterGateway(t *testing.T) {
	m := New()
	m.RegisterGateway(stubStats{
		ConnectionsAccepted: 5,
		SessionsActive:      2,
		CommandsSent:        3,
		CommandsUnheard:     1,
		EventsDropped:       7,
	})

	expected := `
# HELP gateway_connections_accepted_total Total number of TCP connections accepted
# TYPE gateway_connections_accepted_total counter
gateway_connections_accepted_total 5
# HELP gateway_events_dropped_total Total number of lifecycle events dropped because the observer queue was full
# TYPE gateway_events_dropped_total counter
gateway_events_dropped_total 7
# HELP gateway_sessions_active Number of open sessions, registered or not
# TYPE gateway_sessions_active gauge
gateway_sessions_active 2
`
	err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"gateway_connections_accepted_total", "gateway_events_dropped_total", "gateway_sessions_active")
	require.NoError(t, err)
}

func TestHandler(t *testing.T) {
	m := New()
	m.HandleEvent(session.Event{Type: session.EventCommandSent, Receivers: 2})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "gateway_commands_receivers_count 1")
	assert.Contains(t, body, "go_goroutines")
}
