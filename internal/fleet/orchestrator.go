package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/session"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Outcome how a run ended
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeAborted           // connect gate refused to start the loop
	OutcomeInterrupted       // context cancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// GateError at least one device failed its initial connect
type GateError struct {
	Failures []*session.ConnectError
	Devices  int
}

func (e *GateError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.DeviceID)
	}
	return fmt.Sprintf("%d of %d devices failed to connect: %s", len(e.Failures), e.Devices, strings.Join(ids, ", "))
}

// Result what a run did
type Result struct {
	Outcome    Outcome
	Iterations int // planned ticks
	Ticks      int // ticks that ran to their barrier
	Sent       int
	Failed     int

	// PerLocation delivered readings keyed by location label
	PerLocation map[string]int

	PublishErrors []error
	// TeardownErr every disconnect failure combined with multierr
	TeardownErr error

	Started  time.Time
	Finished time.Time
}

// Elapsed wall time of the run
func (r Result) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Orchestrator drives a fleet of sessions through connect, a fixed number of
// publish ticks and teardown.
type Orchestrator struct {
	sessions   []*session.Session
	iterations int
	tick       time.Duration
	logger     *zap.Logger
	onLoop     func()
}

// NewOrchestrator takes ownership of sessions
func NewOrchestrator(sessions []*session.Session, iterations int, tick time.Duration, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		sessions:   sessions,
		iterations: iterations,
		tick:       tick,
		logger:     logger,
	}
}

// OnLoopStart registers fn to run once the connect gate has passed, just
// before the first tick
func (o *Orchestrator) OnLoopStart(fn func()) {
	o.onLoop = fn
}

// Run executes the fleet lifecycle. Cancelling ctx stops further ticks; the
// tick in flight completes and every connected session is disconnected
// before Run returns. An interrupted run is not an error. A failed connect
// gate returns *GateError.
func (o *Orchestrator) Run(ctx context.Context) (res Result, err error) {
	res = Result{
		Iterations:  o.iterations,
		PerLocation: make(map[string]int),
		Started:     time.Now(),
	}
	for _, s := range o.sessions {
		res.PerLocation[s.Device().Location] = 0
	}

	// teardown must outlive the caller's cancellation
	defer func() {
		res.TeardownErr = o.teardown(context.WithoutCancel(ctx))
		res.Finished = time.Now()
	}()

	o.logger.Info("Connecting devices", zap.Int("device_count", len(o.sessions)))
	connectErrs := Barrier(ctx, len(o.sessions), func(ctx context.Context, i int) error {
		return o.sessions[i].Connect(ctx)
	})

	if ctx.Err() != nil {
		o.logger.Warn("Interrupted while connecting")
		res.Outcome = OutcomeInterrupted
		return res, nil
	}

	var failures []*session.ConnectError
	for _, cerr := range connectErrs {
		var connectErr *session.ConnectError
		if errors.As(cerr, &connectErr) {
			failures = append(failures, connectErr)
		}
	}
	if len(failures) > 0 {
		gate := &GateError{Failures: failures, Devices: len(o.sessions)}
		o.logger.Error("Connect gate failed, not starting publish loop", zap.Error(gate))
		res.Outcome = OutcomeAborted
		return res, gate
	}

	o.logger.Info("All devices connected, starting publish loop",
		zap.Int("iterations", o.iterations),
		zap.Duration("tick_interval", o.tick),
	)
	if o.onLoop != nil {
		o.onLoop()
	}

	// publishes already dispatched for a tick are never cut short
	publishCtx := context.WithoutCancel(ctx)

loop:
	for tick := 0; tick < o.iterations; tick++ {
		if ctx.Err() != nil {
			break
		}

		publishErrs := Barrier(publishCtx, len(o.sessions), func(ctx context.Context, i int) error {
			s := o.sessions[i]
			if s.Status() != session.StatusConnected {
				return nil
			}
			_, err := s.PublishOnce(ctx)
			return err
		})

		for i, perr := range publishErrs {
			if perr != nil {
				res.Failed++
				res.PublishErrors = append(res.PublishErrors, perr)
				continue
			}
			if o.sessions[i].Status() == session.StatusConnected {
				res.Sent++
				res.PerLocation[o.sessions[i].Device().Location]++
			}
		}
		res.Ticks++
		o.logger.Debug("Tick completed", zap.Int("tick", tick+1), zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))

		if tick < o.iterations-1 {
			timer := time.NewTimer(o.tick)
			select {
			case <-ctx.Done():
				timer.Stop()
				break loop
			case <-timer.C:
			}
		}
	}

	if res.Ticks < o.iterations {
		o.logger.Warn("Publish loop interrupted", zap.Int("ticks", res.Ticks), zap.Int("iterations", o.iterations))
		res.Outcome = OutcomeInterrupted
		return res, nil
	}

	res.Outcome = OutcomeCompleted
	return res, nil
}

func (o *Orchestrator) teardown(ctx context.Context) error {
	o.logger.Info("Disconnecting devices")
	errs := Barrier(ctx, len(o.sessions), func(ctx context.Context, i int) error {
		return o.sessions[i].Disconnect(ctx)
	})

	var combined error
	for _, derr := range errs {
		combined = multierr.Append(combined, derr)
	}
	if combined != nil {
		o.logger.Warn("Teardown finished with errors", zap.Error(combined))
	}
	return combined
}
