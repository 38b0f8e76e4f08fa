package publisher

import (
	"context"
	"fmt"

	commonconfig "github.com/ruda0008/rideau-canal-sensor-simulation/common/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/common/redis"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"go.uber.org/zap"
)

// RedisStream appends events to a Redis stream with XADD
type RedisStream struct {
	device     config.DeviceConfig
	redisCfg   commonconfig.RedisConfig
	stream     string
	maxLen     int64
	deviceAuth bool
	logger     *zap.Logger

	client *redis.Client
}

// NewRedisStream creates the publisher
func NewRedisStream(cfg *config.Config, device config.DeviceConfig, logger *zap.Logger) *RedisStream {
	return &RedisStream{
		device:     device,
		redisCfg:   cfg.Redis,
		stream:     cfg.RedisStream.Name,
		maxLen:     cfg.RedisStream.MaxLen,
		deviceAuth: cfg.RedisStream.DeviceAuth,
		logger:     logger,
	}
}

// Connect opens the client and PINGs the server. With device auth the
// device id and credential are used as ACL username and password.
func (p *RedisStream) Connect(ctx context.Context) error {
	var client *redis.Client
	if p.deviceAuth {
		client = redis.NewRedisClientAs(&p.redisCfg, p.device.DeviceID, p.device.Credential)
	} else {
		client = redis.NewRedisClient(&p.redisCfg)
	}

	if err := redis.Ping(ctx, client); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis %s: %w", p.redisCfg.Addr, err)
	}

	p.client = client
	return nil
}

// Send XADDs the message; the entry id is logged at debug level
func (p *RedisStream) Send(ctx context.Context, msg Message) error {
	if p.client == nil {
		return ErrNotConnected
	}

	id, err := redis.PublishToStream(ctx, p.client, p.stream, p.maxLen, map[string]interface{}{
		"data":             msg.Payload,
		"content_type":     msg.ContentType,
		"content_encoding": msg.ContentEncoding,
		"device_id":        msg.DeviceID,
		"message_id":       msg.MessageID,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}

	p.logger.Debug("Stream entry added",
		zap.String("stream", p.stream),
		zap.String("entry_id", id),
		zap.String("device_id", msg.DeviceID),
	)
	return nil
}

// Disconnect closes the client
func (p *RedisStream) Disconnect(ctx context.Context) error {
	if p.client == nil {
		return ErrNotConnected
	}
	err := redis.Close(p.client)
	p.client = nil
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}
