package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ruda0008/rideau-canal-sensor-simulation/common/config"
)

// Client wraps a paho client with context-aware Connect/Publish
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
}

// NewClient builds the client without touching the network
func NewClient(cfg *config.MQTTConfig) *Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}

	// 3.1.1 only, no reconnect: a dropped device surfaces as a publish failure
	opts.SetProtocolVersion(4)
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)

	return &Client{
		client: mqtt.NewClient(opts),
		config: cfg,
	}
}

// Connect opens the session with the broker. A cancelled ctx also aborts
// the attempt paho is still making in the background.
func (c *Client) Connect(ctx context.Context) error {
	if err := wait(ctx, c.client.Connect()); err != nil {
		if ctx.Err() != nil {
			c.client.Disconnect(0)
		}
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.config.Broker, err)
	}
	return nil
}

// Publish sends payload and waits for the broker acknowledgement (QoS>0)
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	if err := wait(ctx, c.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// Disconnect closes the session, waiting up to 250ms for in-flight work
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
