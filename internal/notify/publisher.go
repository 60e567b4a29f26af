// Package notify publishes recorded orders to an MQTT broker so external
// systems (fulfilment, dashboards) can react to them.
package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/ashureev/handoff-router/internal/domain"
)

// ErrNotConnected is returned when publishing before Start.
var ErrNotConnected = errors.New("mqtt publisher not started")

// Config describes the broker connection.
type Config struct {
	Broker      string // e.g. mqtt://localhost:1883 or mqtts://broker:8883
	TopicPrefix string // defaults to "handoff"
	Username    string
	Password    string
	ClientID    string // defaults to "handoff-router"
}

// Publisher sends order events over MQTT using an auto-reconnecting client.
type Publisher struct {
	cfg    Config
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect.
func New(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.TopicPrefix = strings.Trim(cfg.TopicPrefix, "/")
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "handoff"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "handoff-router"
	}
	return &Publisher{cfg: cfg, logger: logger.With("component", "mqtt")}
}

// Start connects to the broker. The connection manager keeps retrying in
// the background when the broker is unreachable, so a timeout on the first
// connection is logged and not returned.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()
	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}
	return nil
}

// Stop publishes an offline availability message and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// PublishOrder sends order as JSON with QoS 1.
func (p *Publisher) PublishOrder(ctx context.Context, order *domain.Order) error {
	if p.cm == nil {
		return ErrNotConnected
	}
	payload, err := orderPayload(order)
	if err != nil {
		return err
	}
	topic := p.orderTopic()
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	p.logger.Debug("order published", "topic", topic, "order_id", order.ID)
	return nil
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	}
}

func (p *Publisher) orderTopic() string {
	return p.cfg.TopicPrefix + "/orders"
}

func (p *Publisher) availabilityTopic() string {
	return p.cfg.TopicPrefix + "/availability"
}

// orderEvent is the wire form of a published order.
type orderEvent struct {
	Type  string        `json:"type"`
	Order *domain.Order `json:"order"`
}

func orderPayload(order *domain.Order) ([]byte, error) {
	if order == nil {
		return nil, fmt.Errorf("nil order")
	}
	raw, err := json.Marshal(orderEvent{Type: "order_placed", Order: order})
	if err != nil {
		return nil, fmt.Errorf("marshal order event: %w", err)
	}
	return raw, nil
}
