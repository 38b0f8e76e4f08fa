package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	commonconfig "github.com/ruda0008/rideau-canal-sensor-simulation/common/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"go.uber.org/zap"
)

// HTTPAPIVersion api-version of the IoT Hub device REST endpoint
const HTTPAPIVersion = "2020-03-13"

// IoTHubHTTP sends events through the IoT Hub HTTPS device endpoint
type IoTHubHTTP struct {
	device   config.DeviceConfig
	httpCfg  commonconfig.HTTPConfig
	tokenTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time

	conn   ConnectionString
	client *resty.Client
}

// NewIoTHubHTTP creates the publisher; the credential is parsed on Connect
func NewIoTHubHTTP(cfg *config.Config, device config.DeviceConfig, logger *zap.Logger) *IoTHubHTTP {
	return &IoTHubHTTP{
		device:   device,
		httpCfg:  cfg.HTTP,
		tokenTTL: cfg.IoTHub.TokenTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// Connect parses the connection string and prepares the HTTP client.
// HTTPS is connectionless so nothing is sent to the hub here.
func (p *IoTHubHTTP) Connect(ctx context.Context) error {
	conn, err := ParseConnectionString(p.device.Credential)
	if err != nil {
		return fmt.Errorf("invalid connection string: %w", err)
	}

	baseURL := p.httpCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://" + conn.HostName
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if p.httpCfg.Timeout > 0 {
		client.SetTimeout(p.httpCfg.Timeout)
	}

	p.conn = conn
	p.client = client
	p.logger.Debug("HTTPS client ready",
		zap.String("device_id", conn.DeviceID),
		zap.String("base_url", baseURL),
	)
	return nil
}

// Send POSTs one event; any non-2xx status is a failure
func (p *IoTHubHTTP) Send(ctx context.Context, msg Message) error {
	if p.client == nil {
		return ErrNotConnected
	}

	token, err := p.conn.SASToken(p.now().Add(p.tokenTTL))
	if err != nil {
		return err
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", token).
		SetHeader("Content-Type", msg.ContentType).
		SetHeader("iothub-contenttype", msg.ContentType).
		SetHeader("iothub-contentencoding", msg.ContentEncoding).
		SetHeader("iothub-messageid", msg.MessageID).
		SetPathParam("deviceId", p.conn.DeviceID).
		SetQueryParam("api-version", HTTPAPIVersion).
		SetBody(msg.Payload).
		Post("/devices/{deviceId}/messages/events")
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("IoT Hub rejected event: %s: %s", resp.Status(), resp.String())
	}
	return nil
}

// Disconnect releases idle connections
func (p *IoTHubHTTP) Disconnect(ctx context.Context) error {
	if p.client == nil {
		return ErrNotConnected
	}
	p.client.GetClient().CloseIdleConnections()
	p.client = nil
	return nil
}
