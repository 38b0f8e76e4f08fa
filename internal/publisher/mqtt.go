package publisher

import (
	"context"
	"fmt"
	"strings"
	"time"

	commonconfig "github.com/ruda0008/rideau-canal-sensor-simulation/common/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/common/mqtt"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"go.uber.org/zap"
)

// IoTHubMQTT sends events to Azure IoT Hub over MQTT 3.1.1
type IoTHubMQTT struct {
	device     config.DeviceConfig
	mqttCfg    commonconfig.MQTTConfig
	apiVersion string
	port       int
	tokenTTL   time.Duration
	logger     *zap.Logger
	now        func() time.Time

	conn   ConnectionString
	client *mqtt.Client
}

// NewIoTHubMQTT creates the publisher; the credential is parsed on Connect
func NewIoTHubMQTT(cfg *config.Config, device config.DeviceConfig, logger *zap.Logger) *IoTHubMQTT {
	return &IoTHubMQTT{
		device:     device,
		mqttCfg:    cfg.MQTT,
		apiVersion: cfg.IoTHub.APIVersion,
		port:       cfg.IoTHub.MQTTPort,
		tokenTTL:   cfg.IoTHub.TokenTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// BrokerURL paho broker address for an IoT Hub host
func BrokerURL(host string, port int, tls bool) string {
	scheme := "tcp"
	if tls {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// MQTTUsername the username IoT Hub expects from a device
func MQTTUsername(conn ConnectionString, apiVersion string) string {
	return fmt.Sprintf("%s/%s/?api-version=%s", conn.HostName, conn.DeviceID, apiVersion)
}

// EventsTopic device-to-cloud topic with the message properties appended
func EventsTopic(deviceID string, msg Message) string {
	return "devices/" + deviceID + "/messages/events/" + messageProperties(msg)
}

// Connect parses the connection string, signs a token and opens the session
func (p *IoTHubMQTT) Connect(ctx context.Context) error {
	conn, err := ParseConnectionString(p.device.Credential)
	if err != nil {
		return fmt.Errorf("invalid connection string: %w", err)
	}
	if !strings.EqualFold(conn.DeviceID, p.device.DeviceID) {
		p.logger.Warn("Connection string device differs from configured device",
			zap.String("device_id", p.device.DeviceID),
			zap.String("credential_device_id", conn.DeviceID),
		)
	}

	token, err := conn.SASToken(p.now().Add(p.tokenTTL))
	if err != nil {
		return err
	}

	cfg := p.mqttCfg
	cfg.Broker = BrokerURL(conn.HostName, p.port, cfg.TLS)
	cfg.ClientID = conn.DeviceID
	cfg.Username = MQTTUsername(conn, p.apiVersion)
	cfg.Password = token

	client := mqtt.NewClient(&cfg)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	p.conn = conn
	p.client = client
	p.logger.Debug("MQTT session open",
		zap.String("device_id", conn.DeviceID),
		zap.String("broker", cfg.Broker),
	)
	return nil
}

// Send publishes msg and waits for PUBACK
func (p *IoTHubMQTT) Send(ctx context.Context, msg Message) error {
	if p.client == nil {
		return ErrNotConnected
	}
	return p.client.Publish(ctx, EventsTopic(p.conn.DeviceID, msg), p.mqttCfg.QoS, false, msg.Payload)
}

// Disconnect closes the MQTT session
func (p *IoTHubMQTT) Disconnect(ctx context.Context) error {
	if p.client == nil {
		return ErrNotConnected
	}
	p.client.Disconnect()
	p.client = nil
	return nil
}
