// Package mqtt mirrors every battery record to an MQTT topic as retained JSON.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/cptspacemanspiff/battery-notifier/internal/battery"
	"github.com/cptspacemanspiff/battery-notifier/internal/config"
)

const publishTimeout = 5 * time.Second

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// Message is the JSON document published for each record.
type Message struct {
	InstanceID  string    `json:"instance_id"`
	PublishedAt time.Time `json:"published_at"`
	battery.Record
}

type Publisher struct {
	client     client
	topic      string
	instanceID string
	logger     *slog.Logger
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPublisher configures the client. A missing client id is generated.
func NewPublisher(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Publisher {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "battery-notifier-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port, "client_id", clientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "err", err)
	})

	return newPublisher(mqtt.NewClient(opts), cfg.Topic, instanceID, logger)
}

func newPublisher(c client, topic, instanceID string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:     c,
		topic:      topic,
		instanceID: instanceID,
		logger:     logger,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Connect waits for the initial connection, honoring ctx and Disconnect.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("publisher stopped")
	default:
	}
	if p.client.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("publisher stopped")
		default:
		}
	}
}

// Publish sends rec as a retained QoS 1 message.
func (p *Publisher) Publish(rec battery.Record) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := json.Marshal(Message{
		InstanceID:  p.instanceID,
		PublishedAt: p.now().UTC(),
		Record:      rec,
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	token := p.client.Publish(p.topic, 1, true, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	p.logger.Debug("published record", "topic", p.topic, "capacity", rec.Capacity)
	return nil
}

// Observe publishes rec and logs any failure. The report path never waits on
// the broker beyond the publish timeout.
func (p *Publisher) Observe(_ context.Context, rec battery.Record) {
	if err := p.Publish(rec); err != nil {
		p.logger.Warn("mqtt publish failed", "topic", p.topic, "err", err)
	}
}

// Disconnect is idempotent. After it, Connect returns an error.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.client.Disconnect(250)
		p.logger.Info("mqtt disconnected")
	})
}
