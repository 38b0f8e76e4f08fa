package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/publisher"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/sensor"
	"go.uber.org/zap"
)

// Status lifecycle state of a device session
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Reporter receives human-facing notifications. Implementations must be
// safe for concurrent use by several sessions.
type Reporter interface {
	Connected(device config.DeviceConfig)
	ConnectFailed(device config.DeviceConfig, err error)
	Published(device config.DeviceConfig, reading sensor.Reading)
	PublishFailed(device config.DeviceConfig, err error)
	Disconnected(device config.DeviceConfig)
	DisconnectFailed(device config.DeviceConfig, err error)
}

// Session ties one device's random walk to its publisher.
//
// Disconnected -> Connected -> Disconnected, or Disconnected -> Failed when
// Connect fails. A session is driven by one goroutine at a time; the
// orchestrator never runs two operations on the same session concurrently.
type Session struct {
	device    config.DeviceConfig
	generator *sensor.Generator
	publisher publisher.Publisher
	reporter  Reporter
	logger    *zap.Logger
	now       func() time.Time

	status    Status
	started   bool
	closed    bool
	published int
	failed    int
}

// Option customizes a Session
type Option func(*Session)

// WithClock overrides the reading timestamp source
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a disconnected session
func New(
	device config.DeviceConfig,
	generator *sensor.Generator,
	pub publisher.Publisher,
	reporter Reporter,
	logger *zap.Logger,
	opts ...Option,
) *Session {
	s := &Session{
		device:    device,
		generator: generator,
		publisher: pub,
		reporter:  reporter,
		logger:    logger.With(zap.String("device_id", device.DeviceID), zap.String("location", device.Location)),
		now:       time.Now,
		status:    StatusDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Device returns the device configuration
func (s *Session) Device() config.DeviceConfig { return s.device }

// Status returns the current lifecycle state
func (s *Session) Status() Status { return s.status }

// Published number of readings delivered
func (s *Session) Published() int { return s.published }

// Failed number of readings that could not be delivered
func (s *Session) Failed() int { return s.failed }

// Connect opens the device connection. A failure moves the session to
// Failed and is returned as *ConnectError.
func (s *Session) Connect(ctx context.Context) error {
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	if err := s.publisher.Connect(ctx); err != nil {
		s.status = StatusFailed
		s.logger.Error("Device connection failed", zap.Error(err))
		s.reporter.ConnectFailed(s.device, err)
		return &ConnectError{DeviceID: s.device.DeviceID, Location: s.device.Location, Err: err}
	}

	s.status = StatusConnected
	s.logger.Info("Device connected")
	s.reporter.Connected(s.device)
	return nil
}

// PublishOnce advances the random walk and sends the resulting reading.
// Send failures are returned as *PublishError; the session stays connected.
func (s *Session) PublishOnce(ctx context.Context) (sensor.Reading, error) {
	if s.status != StatusConnected {
		return sensor.Reading{}, ErrNotConnected
	}

	s.generator.Step()
	reading := s.generator.Emit(s.device.DeviceID, s.device.Location, s.now())

	payload, err := json.Marshal(reading)
	if err != nil {
		return reading, s.publishFailed(fmt.Errorf("failed to marshal reading: %w", err))
	}

	msg := publisher.Message{
		Payload:         payload,
		ContentType:     publisher.ContentTypeJSON,
		ContentEncoding: publisher.EncodingUTF8,
		MessageID:       uuid.NewString(),
		DeviceID:        s.device.DeviceID,
	}
	if err := s.publisher.Send(ctx, msg); err != nil {
		return reading, s.publishFailed(err)
	}

	s.published++
	s.logger.Debug("Reading published",
		zap.String("message_id", msg.MessageID),
		zap.String("safety", string(reading.Safety)),
	)
	s.reporter.Published(s.device, reading)
	return reading, nil
}

func (s *Session) publishFailed(err error) error {
	s.failed++
	s.logger.Warn("Reading not published", zap.Error(err))
	s.reporter.PublishFailed(s.device, err)
	return &PublishError{DeviceID: s.device.DeviceID, Location: s.device.Location, Err: err}
}

// Disconnect closes a connected session. It is a no-op for sessions that
// never connected and for repeated calls.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.status != StatusConnected || s.closed {
		return nil
	}
	s.closed = true
	s.status = StatusDisconnected

	if err := s.publisher.Disconnect(ctx); err != nil {
		s.logger.Error("Device disconnect failed", zap.Error(err))
		s.reporter.DisconnectFailed(s.device, err)
		return &DisconnectError{DeviceID: s.device.DeviceID, Location: s.device.Location, Err: err}
	}

	s.logger.Info("Device disconnected")
	s.reporter.Disconnected(s.device)
	return nil
}
