package sensor

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialState_WithinPlausibleRange(t *testing.T) {
	for seed := int64(0); seed < 200; seed++ {
		s := InitialState(rand.New(rand.NewSource(seed)))

		require.True(t, IceThickness.Initial.Contains(s.IceThickness), "seed %d ice %f", seed, s.IceThickness)
		require.True(t, SurfaceTemp.Initial.Contains(s.SurfaceTemp), "seed %d surface %f", seed, s.SurfaceTemp)
		require.True(t, SnowDepth.Initial.Contains(s.SnowDepth), "seed %d snow %f", seed, s.SnowDepth)
		require.True(t, AmbientTemp.Initial.Contains(s.AmbientTemp), "seed %d ambient %f", seed, s.AmbientTemp)
	}
}

func TestGenerator_Step_StaysWithinHardBounds(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(42)))

	for i := 0; i < 20000; i++ {
		s := g.Step()

		require.True(t, IceThickness.Bound.Contains(s.IceThickness), "step %d ice %f", i, s.IceThickness)
		require.True(t, SurfaceTemp.Bound.Contains(s.SurfaceTemp), "step %d surface %f", i, s.SurfaceTemp)
		require.True(t, SnowDepth.Bound.Contains(s.SnowDepth), "step %d snow %f", i, s.SnowDepth)
		require.True(t, AmbientTemp.Bound.Contains(s.AmbientTemp), "step %d ambient %f", i, s.AmbientTemp)
	}
}

func TestGenerator_Step_ReachesBoundsUnderDrift(t *testing.T) {
	// ice drifts down and snow drifts up on average, so a long run pins both
	g := NewGenerator(rand.New(rand.NewSource(7)))
	for i := 0; i < 5000; i++ {
		g.Step()
	}
	s := g.State()

	assert.Less(t, s.IceThickness, 25.0)
	assert.Greater(t, s.SnowDepth, 5.0)
}

func TestGenerator_SameSeedSameSequence(t *testing.T) {
	a := NewGenerator(rand.New(rand.NewSource(1234)))
	b := NewGenerator(rand.New(rand.NewSource(1234)))

	require.Equal(t, a.State(), b.State())
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Step(), b.Step(), "step %d", i)
	}
}

func TestGenerator_StepMatchesAdvanceOfDrawnDeltas(t *testing.T) {
	start := State{IceThickness: 30, SurfaceTemp: -5, SnowDepth: 3, AmbientTemp: -10}
	g := NewGeneratorFromState(rand.New(rand.NewSource(99)), start)

	deltas := DrawDeltas(rand.New(rand.NewSource(99)))

	assert.Equal(t, start.Advance(deltas), g.Step())
}

func TestState_Advance(t *testing.T) {
	tests := []struct {
		name   string
		state  State
		deltas Deltas
		want   State
	}{
		{
			name:   "inside bounds",
			state:  State{IceThickness: 30, SurfaceTemp: -5, SnowDepth: 3, AmbientTemp: -10},
			deltas: Deltas{IceThickness: -0.5, SurfaceTemp: 0.5, SnowDepth: 0.25, AmbientTemp: -0.25},
			want:   State{IceThickness: 29.5, SurfaceTemp: -4.5, SnowDepth: 3.25, AmbientTemp: -10.25},
		},
		{
			name:   "clamped at lower bounds",
			state:  State{IceThickness: 20.1, SurfaceTemp: -14.9, SnowDepth: 0.05, AmbientTemp: -19.9},
			deltas: Deltas{IceThickness: -0.5, SurfaceTemp: -0.5, SnowDepth: -0.1, AmbientTemp: -0.3},
			want:   State{IceThickness: 20, SurfaceTemp: -15, SnowDepth: 0, AmbientTemp: -20},
		},
		{
			name:   "clamped at upper bounds",
			state:  State{IceThickness: 39.9, SurfaceTemp: 1.9, SnowDepth: 9.9, AmbientTemp: 4.9},
			deltas: Deltas{IceThickness: 0.3, SurfaceTemp: 0.5, SnowDepth: 0.3, AmbientTemp: 0.3},
			want:   State{IceThickness: 40, SurfaceTemp: 2, SnowDepth: 10, AmbientTemp: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.state.Advance(tt.deltas)
			assert.InDelta(t, tt.want.IceThickness, got.IceThickness, 1e-9)
			assert.InDelta(t, tt.want.SurfaceTemp, got.SurfaceTemp, 1e-9)
			assert.InDelta(t, tt.want.SnowDepth, got.SnowDepth, 1e-9)
			assert.InDelta(t, tt.want.AmbientTemp, got.AmbientTemp, 1e-9)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		ice, surface float64
		want         Safety
	}{
		{31.0, -3.0, SafetySafe},
		{30.0, -2.0, SafetySafe},
		{27.0, -0.5, SafetyCaution},
		{35.0, -1.99, SafetyCaution},
		{29.99, -10.0, SafetyCaution},
		{25.0, 0.0, SafetyCaution},
		{22.0, 1.0, SafetyUnsafe},
		{24.99, -5.0, SafetyUnsafe},
		{33.0, 0.01, SafetyUnsafe},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.ice, tt.surface), "ice=%v surface=%v", tt.ice, tt.surface)
	}
}

func TestNewReading_RoundsAndClassifies(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 0, 0, 123456000, time.FixedZone("EST", -5*3600))
	state := State{IceThickness: 31.256, SurfaceTemp: -3.004, SnowDepth: 2.499, AmbientTemp: -8.754}

	r := NewReading("nac-sensor", "NAC", now, state)

	assert.Equal(t, "nac-sensor", r.DeviceID)
	assert.Equal(t, "NAC", r.Location)
	assert.Equal(t, "2025-01-15T15:00:00.123456Z", r.Timestamp)
	assert.Equal(t, 31.26, r.IceThickness)
	assert.Equal(t, -3.0, r.SurfaceTemp)
	assert.Equal(t, 2.5, r.SnowAccumulation)
	assert.Equal(t, -8.75, r.ExternalTemp)
	assert.Equal(t, SafetySafe, r.Safety)
}

func TestNewReading_ClassifiesRoundedValues(t *testing.T) {
	// 29.996 rounds to 30.00 which is SAFE, the raw value alone would be CAUTION
	r := NewReading("d", "L", time.Now(), State{IceThickness: 29.996, SurfaceTemp: -2.001})

	assert.Equal(t, 30.0, r.IceThickness)
	assert.Equal(t, SafetySafe, r.Safety)
}

func TestReading_WireShape(t *testing.T) {
	r := NewReading("dows-lake-sensor", "Dow's Lake", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		State{IceThickness: 32.1, SurfaceTemp: -4.25, SnowDepth: 1, AmbientTemp: -12.5})

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Len(t, fields, 7)
	assert.Equal(t, "dows-lake-sensor", fields["deviceId"])
	assert.Equal(t, "Dow's Lake", fields["location"])
	assert.Equal(t, "2025-02-01T00:00:00.000000Z", fields["timestamp"])
	assert.Equal(t, 32.1, fields["iceThickness"])
	assert.Equal(t, -4.25, fields["surfaceTemp"])
	assert.Equal(t, 1.0, fields["snowAccumulation"])
	assert.Equal(t, -12.5, fields["externalTemp"])
	assert.NotContains(t, fields, "Safety")
}
