package sensor

import (
	"math/rand"
	"time"
)

// Range closed interval [Min, Max]
type Range struct {
	Min float64
	Max float64
}

// Clamp pins v into the interval
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies within the interval
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Draw returns a uniform sample from the interval
func (r Range) Draw(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Quantity describes one simulated measurement
type Quantity struct {
	Initial Range // plausible starting values
	Delta   Range // per-step drift
	Bound   Range // hard limits
}

// Ice drifts down faster than it grows, snow accumulates more than it melts.
var (
	IceThickness = Quantity{Initial: Range{28, 35}, Delta: Range{-0.5, 0.3}, Bound: Range{20, 40}}
	SurfaceTemp  = Quantity{Initial: Range{-10, -1}, Delta: Range{-0.5, 0.5}, Bound: Range{-15, 2}}
	SnowDepth    = Quantity{Initial: Range{0, 5}, Delta: Range{-0.1, 0.3}, Bound: Range{0, 10}}
	AmbientTemp  = Quantity{Initial: Range{-15, -2}, Delta: Range{-0.3, 0.3}, Bound: Range{-20, 5}}
)

// State current value of each quantity (cm / °C)
type State struct {
	IceThickness float64
	SurfaceTemp  float64
	SnowDepth    float64
	AmbientTemp  float64
}

// Deltas one step worth of drift
type Deltas struct {
	IceThickness float64
	SurfaceTemp  float64
	SnowDepth    float64
	AmbientTemp  float64
}

// Advance applies d and clamps every quantity into its hard bound.
func (s State) Advance(d Deltas) State {
	return State{
		IceThickness: IceThickness.Bound.Clamp(s.IceThickness + d.IceThickness),
		SurfaceTemp:  SurfaceTemp.Bound.Clamp(s.SurfaceTemp + d.SurfaceTemp),
		SnowDepth:    SnowDepth.Bound.Clamp(s.SnowDepth + d.SnowDepth),
		AmbientTemp:  AmbientTemp.Bound.Clamp(s.AmbientTemp + d.AmbientTemp),
	}
}

// InitialState draws each quantity from its plausible range
func InitialState(rng *rand.Rand) State {
	return State{
		IceThickness: IceThickness.Initial.Draw(rng),
		SurfaceTemp:  SurfaceTemp.Initial.Draw(rng),
		SnowDepth:    SnowDepth.Initial.Draw(rng),
		AmbientTemp:  AmbientTemp.Initial.Draw(rng),
	}
}

// DrawDeltas samples one step of drift. Draw order is fixed so seeded
// sources replay identically.
func DrawDeltas(rng *rand.Rand) Deltas {
	return Deltas{
		IceThickness: IceThickness.Delta.Draw(rng),
		SurfaceTemp:  SurfaceTemp.Delta.Draw(rng),
		SnowDepth:    SnowDepth.Delta.Draw(rng),
		AmbientTemp:  AmbientTemp.Delta.Draw(rng),
	}
}

// Generator owns the random walk of a single device. Not safe for
// concurrent use; a session drives it from one goroutine at a time.
type Generator struct {
	rng   *rand.Rand
	state State
}

// NewGenerator seeds the walk from rng
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{
		rng:   rng,
		state: InitialState(rng),
	}
}

// NewGeneratorFromState starts the walk at a known state
func NewGeneratorFromState(rng *rand.Rand, state State) *Generator {
	return &Generator{rng: rng, state: state}
}

// State returns a copy of the current state
func (g *Generator) State() State {
	return g.state
}

// Step advances the walk by one tick
func (g *Generator) Step() State {
	g.state = g.state.Advance(DrawDeltas(g.rng))
	return g.state
}

// Emit snapshots the current state as a Reading
func (g *Generator) Emit(deviceID, location string, now time.Time) Reading {
	return NewReading(deviceID, location, now, g.state)
}
