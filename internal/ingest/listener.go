package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aigrow/aigrow-device-server/internal/infrastructure/config"
	"github.com/aigrow/aigrow-device-server/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of the MQTT client the Listener uses.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// ListenerConfig names the topics and QoS used for device traffic.
type ListenerConfig struct {
	InboundTopic  string
	OutboundTopic string
	QoS           byte
}

// Listener connects the Router to the device topic: every inbound message
// is handled and its acknowledgement published on the outbound topic.
type Listener struct {
	client MQTTClient
	router *Router
	cfg    ListenerConfig
	logger Logger

	mu      sync.Mutex
	ctx     context.Context //nolint:containedctx // base context for broker callbacks
	started bool
}

// NewListener creates a Listener. Empty topics fall back to config.DefaultTopic.
func NewListener(client MQTTClient, router *Router, cfg ListenerConfig, logger Logger) *Listener {
	if cfg.InboundTopic == "" {
		cfg.InboundTopic = config.DefaultTopic
	}
	if cfg.OutboundTopic == "" {
		cfg.OutboundTopic = config.DefaultTopic
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Listener{
		client: client,
		router: router,
		cfg:    cfg,
		logger: logger,
	}
}

// Start subscribes to the inbound topic. Messages are handled with ctx as
// their parent context until Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return nil
	}
	l.ctx = ctx

	if err := l.client.Subscribe(l.cfg.InboundTopic, l.cfg.QoS, l.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", l.cfg.InboundTopic, err)
	}
	l.started = true

	l.logger.Info("listening for device messages",
		"inbound_topic", l.cfg.InboundTopic,
		"outbound_topic", l.cfg.OutboundTopic,
		"qos", l.cfg.QoS,
	)
	return nil
}

// Stop unsubscribes from the inbound topic.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}
	l.started = false

	if err := l.client.Unsubscribe(l.cfg.InboundTopic); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", l.cfg.InboundTopic, err)
	}
	return nil
}

// handleMessage is invoked by the MQTT client for each inbound message.
func (l *Listener) handleMessage(topic string, payload []byte) error {
	messageID := uuid.NewString()

	ack := l.router.Handle(ContextWithMessageID(l.baseContext(), messageID), payload)
	if ack == nil {
		l.logger.Debug("message dropped", "message_id", messageID, "topic", topic)
		return nil
	}

	// The acknowledgement shares the topic with inbound traffic; it has no
	// command field so the router drops it when it comes back around.
	data, err := json.Marshal(ack)
	if err != nil {
		l.logger.Error("encoding acknowledgement failed", "message_id", messageID, "error", err)
		return fmt.Errorf("encoding acknowledgement: %w", err)
	}

	if err := l.client.Publish(l.cfg.OutboundTopic, data, l.cfg.QoS, false); err != nil {
		l.logger.Error("publishing acknowledgement failed",
			"message_id", messageID,
			"topic", l.cfg.OutboundTopic,
			"error", err,
		)
		return fmt.Errorf("publishing acknowledgement: %w", err)
	}

	l.logger.Debug("message handled",
		"message_id", messageID,
		"topic", topic,
		"success", ack.Success,
		"error_code", string(ack.ErrorCode),
		"device_id", ack.DeviceID,
	)
	return nil
}

func (l *Listener) baseContext() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx == nil {
		return context.Background()
	}
	return l.ctx
}

type messageIDKey struct{}

// ContextWithMessageID tags ctx with the id assigned to an inbound message.
// The Router adds it to every log line it writes for that message.
func ContextWithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey{}, id)
}

// MessageID returns the id set by ContextWithMessageID, or "".
func MessageID(ctx context.Context) string {
	id, _ := ctx.Value(messageIDKey{}).(string)
	return id
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
