// Package mqtt bridges the internal event bus to an MQTT broker so
// external automations can react to assistant activity.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/Koi-west/claude-code-pet/internal/config"
	"github.com/Koi-west/claude-code-pet/internal/events"
)

// Publisher forwards bus events to the configured MQTT topic tree.
type Publisher struct {
	cfg    config.MQTTConfig
	bus    *events.Bus
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and forwarding loop.
func New(cfg config.MQTTConfig, bus *events.Bus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, bus: bus, logger: logger}
}

// Start connects to the broker and forwards bus events until ctx is
// cancelled. An availability message marks the assistant online while
// connected and offline via the MQTT will on unclean disconnect.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.cfg.Topic + "/availability"

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
			if _, err := cm.Publish(ctx, &paho.Publish{
				Topic:   availTopic,
				Payload: []byte("online"),
				QoS:     1,
				Retain:  true,
			}); err != nil {
				p.logger.Warn("mqtt availability publish failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "miko-events",
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

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.forward(ctx)
	return nil
}

// Stop publishes the offline availability message and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.cfg.Topic + "/availability",
		Payload: []byte("offline"),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt offline publish failed", "error", err)
	}
	return p.cm.Disconnect(ctx)
}

// forward consumes bus events until ctx is cancelled.
func (p *Publisher) forward(ctx context.Context) {
	ch := p.bus.Subscribe(64)
	defer p.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			p.publishEvent(ctx, e)
		}
	}
}

func (p *Publisher) publishEvent(ctx context.Context, e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("mqtt marshal event", "kind", e.Kind, "error", err)
		return
	}

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   EventTopic(p.cfg.Topic, e),
		Payload: payload,
		QoS:     0,
	}); err != nil {
		p.logger.Debug("mqtt event publish failed", "kind", e.Kind, "error", err)
	}
}

// EventTopic maps an event to its topic under the configured base.
func EventTopic(base string, e events.Event) string {
	return base + "/" + e.Source + "/" + e.Kind
}
