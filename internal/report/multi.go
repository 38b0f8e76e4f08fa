package report

import (
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/sensor"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/session"
)

// Multi forwards every notification to each reporter in order
type Multi []session.Reporter

func (m Multi) Connected(d config.DeviceConfig) {
	for _, r := range m {
		r.Connected(d)
	}
}

func (m Multi) ConnectFailed(d config.DeviceConfig, err error) {
	for _, r := range m {
		r.ConnectFailed(d, err)
	}
}

func (m Multi) Published(d config.DeviceConfig, reading sensor.Reading) {
	for _, r := range m {
		r.Published(d, reading)
	}
}

func (m Multi) PublishFailed(d config.DeviceConfig, err error) {
	for _, r := range m {
		r.PublishFailed(d, err)
	}
}

func (m Multi) Disconnected(d config.DeviceConfig) {
	for _, r := range m {
		r.Disconnected(d)
	}
}

func (m Multi) DisconnectFailed(d config.DeviceConfig, err error) {
	for _, r := range m {
		r.DisconnectFailed(d, err)
	}
}
