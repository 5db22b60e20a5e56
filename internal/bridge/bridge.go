package bridge

import (
	"context"
	"fmt"

	"github.com/bulbnet/bulbnet-core/internal/device"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/logging"
	"github.com/bulbnet/bulbnet-core/internal/infrastructure/mqtt"
)

// SystemUsername is the audit attribution for broker-originated writes.
// The literal matches records written by earlier revisions of the system.
const SystemUsername = "Bulbs simulator app"

// msgChanSize is the buffer size for the inbound message channel.
// Messages beyond this are dropped (best-effort) to avoid back-pressure
// inside the paho callback goroutines.
const msgChanSize = 256

// Message is one inbound broker message, as enqueued by the subscription
// callbacks. All interpretation happens in the consumer goroutine.
type Message struct {
	Topic   string
	Payload []byte
}

// Broker is the slice of the MQTT client the bridge needs.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Notifier pushes events to connected UI sessions.
type Notifier interface {
	Broadcast(eventType string, payload any)
}

// MetricWriter records measurable status fields. Writes are fire-and-forget.
type MetricWriter interface {
	WriteDeviceStatus(deviceID string, fields map[string]interface{})
}

// Bridge relays device messages between the MQTT broker and the store.
//
// Subscription callbacks only enqueue onto a buffered channel; a single
// consumer goroutine processes messages in arrival order and owns every
// store, publish and notify side effect. This keeps handler code off the
// paho goroutines and serialises writes, which suits SQLite's single-writer
// model.
type Bridge struct {
	broker   Broker
	devices  device.Repository
	audit    device.AuditRepository
	notifier Notifier
	metrics  MetricWriter
	logger   *logging.Logger
	qos      byte

	msgCh  chan Message
	topics mqtt.Topics
}

// New creates a bridge. notifier and metrics may be nil; the corresponding
// side effects are skipped.
func New(broker Broker, devices device.Repository, audit device.AuditRepository,
	notifier Notifier, metrics MetricWriter, logger *logging.Logger, qos byte,
) *Bridge {
	return &Bridge{
		broker:   broker,
		devices:  devices,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With("component", "bridge"),
		qos:      qos,
		msgCh:    make(chan Message, msgChanSize),
	}
}

// Start subscribes to the device topic patterns and launches the consumer
// goroutine. The consumer runs until ctx is cancelled, then drains any
// buffered messages before exiting.
func (b *Bridge) Start(ctx context.Context) error {
	patterns := []string{
		b.topics.AllDeviceSignins(),
		b.topics.AllDeviceStateChanges(),
	}

	for _, pattern := range patterns {
		if err := b.broker.Subscribe(pattern, b.qos, b.enqueue); err != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, err)
		}
	}

	go b.run(ctx)

	b.logger.Info("bridge started", "patterns", patterns)
	return nil
}

// enqueue pushes an inbound message onto the channel (best-effort).
// If the channel is full the message is dropped and a warning is logged.
func (b *Bridge) enqueue(topic string, payload []byte) error {
	select {
	case b.msgCh <- Message{Topic: topic, Payload: payload}:
	default:
		b.logger.Warn("bridge message channel full — dropping message",
			"topic", topic,
		)
	}
	return nil
}

// run is the consumer loop. It processes messages serially in arrival order.
func (b *Bridge) run(ctx context.Context) {
	for {
		select {
		case msg := <-b.msgCh:
			b.handle(msg)
		case <-ctx.Done():
			// Drain remaining messages before exiting
			for {
				select {
				case msg := <-b.msgCh:
					b.handle(msg)
				default:
					b.logger.Info("bridge stopped")
					return
				}
			}
		}
	}
}
