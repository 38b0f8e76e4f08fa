package sensor

import (
	"math"
	"time"
)

// TimestampLayout ISO-8601 UTC with microseconds and a Z suffix
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Safety skating condition derived from a reading
type Safety string

const (
	SafetySafe    Safety = "SAFE"
	SafetyCaution Safety = "CAUTION"
	SafetyUnsafe  Safety = "UNSAFE"
)

// Classify thresholds: ice in cm, surface temperature in °C.
func Classify(iceThickness, surfaceTemp float64) Safety {
	switch {
	case iceThickness >= 30 && surfaceTemp <= -2:
		return SafetySafe
	case iceThickness >= 25 && surfaceTemp <= 0:
		return SafetyCaution
	default:
		return SafetyUnsafe
	}
}

// Reading one published measurement. Field names are consumed by the
// downstream stream analytics job and must not change.
type Reading struct {
	DeviceID         string  `json:"deviceId"`
	Location         string  `json:"location"`
	Timestamp        string  `json:"timestamp"`
	IceThickness     float64 `json:"iceThickness"`
	SurfaceTemp      float64 `json:"surfaceTemp"`
	SnowAccumulation float64 `json:"snowAccumulation"`
	ExternalTemp     float64 `json:"externalTemp"`

	Safety Safety `json:"-"`
}

// NewReading rounds state to 2 decimals and classifies the rounded values
func NewReading(deviceID, location string, now time.Time, state State) Reading {
	r := Reading{
		DeviceID:         deviceID,
		Location:         location,
		Timestamp:        FormatTimestamp(now),
		IceThickness:     Round2(state.IceThickness),
		SurfaceTemp:      Round2(state.SurfaceTemp),
		SnowAccumulation: Round2(state.SnowDepth),
		ExternalTemp:     Round2(state.AmbientTemp),
	}
	r.Safety = Classify(r.IceThickness, r.SurfaceTemp)
	return r
}

// FormatTimestamp renders t in UTC using TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Round2 rounds half away from zero to 2 decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
