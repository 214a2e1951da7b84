package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	// BufferSize is the number of messages kept while disconnected.
	BufferSize int
	Logger     *zap.Logger
	// Stats, if set, is told the outbox depth and each eviction.
	Stats OutboxStats
}

// OutboxStats receives offline queue figures.
type OutboxStats interface {
	SetMQTTQueued(n int)
	RecordMQTTDropped()
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    *zap.Logger

	stats OutboxStats

	mu            sync.Mutex
	outbox        *outbox
	handler       CommandHandler
	everConnected bool
}

// NewRealPublisher creates a publisher for the given broker. The client keeps
// retrying in the background if the broker is not reachable within the
// initial connect timeout; until then messages are buffered.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}

	p := &RealPublisher{
		topics: Topics{Prefix: opts.TopicPrefix},
		log:    log.Named("mqtt"),
		stats:  opts.Stats,
		outbox: newOutbox(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System(), string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("connection lost", zap.Error(err))
		})

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warn("broker not reachable yet, buffering", zap.String("broker", opts.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// onConnect runs on every (re)connection: it restores the command
// subscription, announces a reconnect and flushes buffered messages.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	handler := p.handler
	pending, dropped := p.outbox.drain()
	p.mu.Unlock()
	if p.stats != nil {
		p.stats.SetMQTTQueued(0)
	}

	p.log.Info("connected",
		zap.Bool("reconnect", reconnect),
		zap.Int("queued", len(pending)),
		zap.Int("dropped", dropped))

	if handler != nil {
		if err := p.subscribe(handler); err != nil {
			p.log.Error("resubscribe failed", zap.Error(err))
		}
	}
	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(p.topics.System(), 1, false, payload)
	}
	for _, msg := range pending {
		token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			p.log.Warn("replay failed", zap.String("topic", msg.topic), zap.Error(token.Error()))
		}
	}
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		evicted := p.outbox.add(outMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		queued, dropped := p.outbox.len(), p.outbox.dropped
		p.mu.Unlock()
		if p.stats != nil {
			p.stats.SetMQTTQueued(queued)
			if evicted {
				p.stats.RecordMQTTDropped()
			}
		}
		if evicted && dropped == 1 {
			p.log.Warn("outbox full, dropping oldest", zap.Int("capacity", p.outbox.capacity))
		}
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishPin sends the level of a pin as a retained message.
func (p *RealPublisher) PublishPin(event PinEvent) error {
	payload, err := FormatPinPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), retained so late subscribers see the level
	return p.publish(p.topics.Pin(event.Name), 0, true, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(p.topics.System(), 1, event.Retained, payload)
}

// SubscribeCommands registers handler for pin commands. The subscription is
// renewed automatically after reconnects.
func (p *RealPublisher) SubscribeCommands(handler CommandHandler) error {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		// onConnect subscribes once the broker is reachable
		return nil
	}
	return p.subscribe(handler)
}

func (p *RealPublisher) subscribe(handler CommandHandler) error {
	token := p.client.Subscribe(p.topics.Commands(), 1, func(_ paho.Client, msg paho.Message) {
		cmd, err := ParseCommand(p.topics, msg.Topic(), msg.Payload())
		if err != nil {
			p.log.Warn("ignoring command", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		handler(cmd)
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
