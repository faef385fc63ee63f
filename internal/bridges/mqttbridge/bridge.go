package mqttbridge

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-gateway/internal/command"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/session"
)

// MQTTClient is the subset of *mqtt.Client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// CommandSender submits commands to connected devices.
// *gateway.Gateway satisfies it.
type CommandSender interface {
	SendCommand(cmd command.Command) bool
}

// Logger is the logging interface used by the bridge.
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

// Options configures a Bridge.
type Options struct {
	Client  MQTTClient
	Gateway CommandSender
	Topics  mqtt.Topics
	QoS     byte
	Logger  Logger
}

// Stats contains bridge counters.
type Stats struct {
	Published        uint64
	PublishErrors    uint64
	CommandsReceived uint64
	CommandsRejected uint64
}

// Bridge mirrors device presence and data onto MQTT and feeds commands
// from the command topic into the gateway.
//
// It is a gateway Observer: HandleEvent runs on the dispatcher goroutine.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	client  MQTTClient
	gateway CommandSender
	topics  mqtt.Topics
	qos     byte
	logger  Logger

	mu      sync.Mutex
	started bool

	published        atomic.Uint64
	publishErrors    atomic.Uint64
	commandsReceived atomic.Uint64
	commandsRejected atomic.Uint64
}

// NewBridge validates opts and returns a Bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, ErrMissingClient
	}
	if opts.Gateway == nil {
		return nil, ErrMissingGateway
	}
	if opts.Topics.Prefix == "" {
		opts.Topics = mqtt.NewTopics("")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Bridge{
		client:  opts.Client,
		gateway: opts.Gateway,
		topics:  opts.Topics,
		qos:     opts.QoS,
		logger:  opts.Logger,
	}, nil
}

// Start subscribes to the command topic.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	topic := b.topics.Command()
	if err := b.client.Subscribe(topic, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.started = true
	b.logger.Info("mqtt bridge started", "command_topic", topic)
	return nil
}

// Stop unsubscribes from the command topic.
//
// Device status topics are left as they are; offline states arrive through
// the disconnected events the gateway emits while closing.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.started = false

	if err := b.client.Unsubscribe(b.topics.Command()); err != nil {
		b.logger.Warn("mqtt bridge unsubscribe failed", "error", err)
	}
	b.logger.Info("mqtt bridge stopped")
}

// HandleEvent publishes presence changes and data frames.
func (b *Bridge) HandleEvent(ev session.Event) {
	if ev.Identity == nil {
		return
	}
	imei := ev.Identity.IMEI

	switch ev.Type {
	case session.EventRegistered:
		b.publishJSON(b.topics.DeviceStatus(imei), true, StatusMessage{
			Status:          StatusOnline,
			IMEI:            imei,
			ICCID:           ev.Identity.ICCID,
			FirmwareVersion: ev.Identity.FirmwareVersion,
			SignalQuality:   ev.Identity.SignalQuality,
			Timestamp:       ev.Timestamp,
		})
	case session.EventDisconnected:
		b.publishJSON(b.topics.DeviceStatus(imei), true, StatusMessage{
			Status:    StatusOffline,
			IMEI:      imei,
			Reason:    ev.Reason,
			Timestamp: ev.Timestamp,
		})
	case session.EventData:
		b.publishJSON(b.topics.DeviceData(imei), false, DataMessage{
			IMEI:      imei,
			Payload:   ev.Payload,
			Timestamp: ev.Timestamp,
		})
	}
}

func (b *Bridge) publishJSON(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.publishErrors.Add(1)
		b.logger.Error("mqtt bridge marshal failed", "topic", topic, "error", err)
		return
	}
	if err := b.client.Publish(topic, payload, b.qos, retained); err != nil {
		b.publishErrors.Add(1)
		b.logger.Warn("mqtt bridge publish failed", "topic", topic, "error", err)
		return
	}
	b.published.Add(1)
}

// handleCommand decodes one command message and submits it.
func (b *Bridge) handleCommand(_ string, payload []byte) error {
	b.commandsReceived.Add(1)

	cmd, err := command.Decode(payload)
	if err != nil {
		b.commandsRejected.Add(1)
		return err
	}

	delivered := b.gateway.SendCommand(cmd)
	b.logger.Info("mqtt command submitted", "result", CommandResult{Command: cmd.String(), Delivered: delivered})
	return nil
}

// Stats returns current counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published:        b.published.Load(),
		PublishErrors:    b.publishErrors.Load(),
		CommandsReceived: b.commandsReceived.Load(),
		CommandsRejected: b.commandsRejected.Load(),
	}
}
