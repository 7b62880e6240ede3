package mqttprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/dovecote/pigeon/internal/deviceapi"
	"github.com/dovecote/pigeon/internal/logging"
)

// ErrNoHeartbeat is returned when the context ends before a heartbeat arrives
var ErrNoHeartbeat = errors.New("no heartbeat received")

const disconnectQuiesceMs = 250

// Reading is one sensor reading published by a device
type Reading struct {
	Topic      string          `json:"-"`
	SensorType string          `json:"sensor_type"`
	Unit       string          `json:"unit"`
	Value      json.RawMessage `json:"reading"`
	Timestamp  int64           `json:"timestamp"`
}

// Time returns the reading's timestamp
func (r Reading) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// Prober talks to one broker
type Prober struct {
	cfg    BrokerConfig
	logger *zap.Logger

	// newClient is replaced in tests
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// New creates a prober for cfg
func New(cfg BrokerConfig) *Prober {
	return &Prober{
		cfg:       cfg,
		logger:    logging.Named("mqtt"),
		newClient: mqtt.NewClient,
	}
}

// Ping connects to the broker with the configured credentials and disconnects
func Ping(ctx context.Context, cfg BrokerConfig) error {
	return New(cfg).Ping(ctx)
}

// WaitHeartbeat waits for the device's heartbeat
func WaitHeartbeat(ctx context.Context, cfg BrokerConfig, deviceID string) (*deviceapi.Health, error) {
	return New(cfg).WaitHeartbeat(ctx, deviceID)
}

// Ping connects to the broker with the configured credentials and disconnects
func (p *Prober) Ping(ctx context.Context) error {
	client, err := p.connect(ctx)
	if err != nil {
		return err
	}
	client.Disconnect(disconnectQuiesceMs)
	return nil
}

// WaitHeartbeat subscribes to the device's heartbeat topic and returns the
// first health document published there. The device publishes it right after
// (re)connecting, so start waiting before the device reboots.
func (p *Prober) WaitHeartbeat(ctx context.Context, deviceID string) (*deviceapi.Health, error) {
	client, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Disconnect(disconnectQuiesceMs)

	topic := HeartbeatTopic(deviceID)
	beats := make(chan mqtt.Message, 1)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case beats <- msg:
		default:
		}
	}
	if err := p.subscribe(ctx, client, topic, handler); err != nil {
		return nil, err
	}
	p.logger.Info("Waiting for heartbeat", zap.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w on %s: %v", ErrNoHeartbeat, topic, ctx.Err())
		case msg := <-beats:
			var health deviceapi.Health
			if err := json.Unmarshal(msg.Payload(), &health); err != nil {
				p.logger.Warn("Ignoring malformed heartbeat",
					zap.String("topic", msg.Topic()),
					zap.Error(err),
				)
				continue
			}
			p.logger.Info("Heartbeat received",
				zap.String("topic", msg.Topic()),
				zap.Bool("mqtt_subscribed", health.MQTTSubscribed),
			)
			return &health, nil
		}
	}
}

// Watch delivers every sensor reading of the device to fn until ctx ends.
// Messages that are not valid readings are skipped.
func (p *Prober) Watch(ctx context.Context, deviceID string, fn func(Reading)) error {
	client, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Disconnect(disconnectQuiesceMs)

	readings := make(chan Reading, 16)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		var r Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			p.logger.Debug("Skipping non-JSON message", zap.String("topic", msg.Topic()))
			return
		}
		r.Topic = msg.Topic()
		select {
		case readings <- r:
		case <-ctx.Done():
		}
	}
	if err := p.subscribe(ctx, client, ReadingsTopic(deviceID), handler); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-readings:
			fn(r)
		}
	}
}

func (p *Prober) connect(ctx context.Context) (mqtt.Client, error) {
	opts, err := p.cfg.clientOptions()
	if err != nil {
		return nil, err
	}

	client := p.newClient(opts)
	p.logger.Debug("Connecting to broker", zap.String("url", p.cfg.URL), zap.String("username", p.cfg.Username))

	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", p.cfg.URL, err)
	}
	p.logger.Debug("Connected to broker", zap.String("url", p.cfg.URL))
	return client, nil
}

func (p *Prober) subscribe(ctx context.Context, client mqtt.Client, topic string, handler mqtt.MessageHandler) error {
	if err := wait(ctx, client.Subscribe(topic, 0, handler)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}

// wait blocks until the token completes or ctx ends
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
