package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	commonconfig "github.com/ruda0008/rideau-canal-sensor-simulation/common/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// Kafka writes events to a topic keyed by device id, so each device keeps
// its readings ordered within one partition
type Kafka struct {
	device   config.DeviceConfig
	kafkaCfg commonconfig.KafkaConfig
	useSASL  bool
	logger   *zap.Logger

	writer *kafka.Writer
}

// NewKafka creates the publisher
func NewKafka(cfg *config.Config, device config.DeviceConfig, logger *zap.Logger) *Kafka {
	return &Kafka{
		device:   device,
		kafkaCfg: cfg.Kafka,
		useSASL:  cfg.KafkaSASL,
		logger:   logger,
	}
}

func (p *Kafka) mechanism() sasl.Mechanism {
	if !p.useSASL {
		return nil
	}
	return plain.Mechanism{Username: p.device.DeviceID, Password: p.device.Credential}
}

// Connect dials the first reachable broker to verify credentials, then
// prepares a synchronous writer
func (p *Kafka) Connect(ctx context.Context) error {
	if len(p.kafkaCfg.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	mech := p.mechanism()

	dialer := &kafka.Dialer{DualStack: true, SASLMechanism: mech}
	var dialErr error
	for _, broker := range p.kafkaCfg.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			conn.Close()
			dialErr = nil
			break
		}
		p.logger.Debug("Broker dial failed", zap.String("broker", broker), zap.Error(err))
		dialErr = err
	}
	if dialErr != nil {
		return fmt.Errorf("failed to reach kafka brokers: %w", dialErr)
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(p.kafkaCfg.Brokers...),
		Topic:        p.kafkaCfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  1,
		BatchSize:    1,
		Transport:    &kafka.Transport{SASL: mech},
	}
	return nil
}

// KafkaMessage maps msg onto a kafka record
func KafkaMessage(msg Message, at time.Time) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.DeviceID),
		Value: msg.Payload,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte(msg.ContentType)},
			{Key: "content-encoding", Value: []byte(msg.ContentEncoding)},
			{Key: "message-id", Value: []byte(msg.MessageID)},
		},
	}
}

// Send writes one record and waits for the leader ack
func (p *Kafka) Send(ctx context.Context, msg Message) error {
	if p.writer == nil {
		return ErrNotConnected
	}
	if err := p.writer.WriteMessages(ctx, KafkaMessage(msg, time.Now())); err != nil {
		return fmt.Errorf("failed to write to topic %s: %w", p.kafkaCfg.Topic, err)
	}
	return nil
}

// Disconnect flushes and closes the writer
func (p *Kafka) Disconnect(ctx context.Context) error {
	if p.writer == nil {
		return ErrNotConnected
	}
	err := p.writer.Close()
	p.writer = nil
	if err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
