package publisher

import (
	"fmt"

	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"go.uber.org/zap"
)

// Factory builds the Publisher for one device
type Factory func(device config.DeviceConfig) Publisher

// NewFactory returns the factory for cfg.Simulation.Sink
func NewFactory(cfg *config.Config, logger *zap.Logger) (Factory, error) {
	sink := cfg.Simulation.Sink
	named := func(d config.DeviceConfig) *zap.Logger {
		return logger.With(zap.String("sink", sink), zap.String("device_id", d.DeviceID))
	}

	switch sink {
	case config.SinkIoTHubMQTT:
		return func(d config.DeviceConfig) Publisher { return NewIoTHubMQTT(cfg, d, named(d)) }, nil
	case config.SinkIoTHubHTTP:
		return func(d config.DeviceConfig) Publisher { return NewIoTHubHTTP(cfg, d, named(d)) }, nil
	case config.SinkRedis:
		return func(d config.DeviceConfig) Publisher { return NewRedisStream(cfg, d, named(d)) }, nil
	case config.SinkKafka:
		return func(d config.DeviceConfig) Publisher { return NewKafka(cfg, d, named(d)) }, nil
	case config.SinkPostgres:
		return func(d config.DeviceConfig) Publisher { return NewPostgres(cfg, d, named(d)) }, nil
	default:
		return nil, fmt.Errorf("unsupported sink %q", sink)
	}
}
