package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/fleet"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/publisher"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/report"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/sensor"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/session"
	"go.uber.org/zap"
)

// ErrAlreadyStarted Run called twice; a service drives a single run
var ErrAlreadyStarted = errors.New("simulation already started")

// SimulatorService wires configuration, publishers, sessions and reporters
// into one run of the fleet
type SimulatorService struct {
	config       *config.Config
	logger       *zap.Logger
	console      *report.Console
	workbook     *report.Workbook
	sessions     []*session.Session
	orchestrator *fleet.Orchestrator

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type options struct {
	out     io.Writer
	factory publisher.Factory
	clock   func() time.Time
}

// Option customizes a SimulatorService
type Option func(*options)

// WithOutput sends the console table to w instead of stdout
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithPublisherFactory replaces the sink selected by configuration
func WithPublisherFactory(f publisher.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithClock overrides reading timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// NewSimulatorService creates the service. Missing credentials are printed
// and returned as *config.MissingCredentialsError before anything connects.
func NewSimulatorService(cfg *config.Config, logger *zap.Logger, opts ...Option) (*SimulatorService, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	console := report.NewConsole(o.out)

	if err := cfg.ValidateCredentials(); err != nil {
		var missing *config.MissingCredentialsError
		if errors.As(err, &missing) {
			console.MissingCredentials(missing.EnvVars())
		}
		return nil, err
	}

	if o.factory == nil {
		factory, err := publisher.NewFactory(cfg, logger)
		if err != nil {
			return nil, err
		}
		o.factory = factory
	}

	reporters := report.Multi{console}
	var workbook *report.Workbook
	if cfg.Simulation.ReportPath != "" {
		wb, err := report.NewWorkbook(cfg.Simulation.ReportPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create report workbook: %w", err)
		}
		workbook = wb
		reporters = append(reporters, wb)
	}

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.Info("Simulator configured",
		zap.String("sink", cfg.Simulation.Sink),
		zap.Int("device_count", len(cfg.Devices)),
		zap.Int("iterations", cfg.Iterations()),
		zap.Duration("tick_interval", cfg.Simulation.TickInterval),
		zap.Int64("seed", seed),
	)

	var sessionOpts []session.Option
	if o.clock != nil {
		sessionOpts = append(sessionOpts, session.WithClock(o.clock))
	}

	sessions := make([]*session.Session, 0, len(cfg.Devices))
	for i, device := range cfg.Devices {
		// one source per device; math/rand sources are not safe to share
		gen := sensor.NewGenerator(rand.New(rand.NewSource(seed + int64(i))))
		sessions = append(sessions, session.New(device, gen, o.factory(device), reporters, logger, sessionOpts...))
	}

	orchestrator := fleet.NewOrchestrator(sessions, cfg.Iterations(), cfg.Simulation.TickInterval, logger)
	orchestrator.OnLoopStart(console.Header)

	return &SimulatorService{
		config:       cfg,
		logger:       logger,
		console:      console,
		workbook:     workbook,
		sessions:     sessions,
		orchestrator: orchestrator,
	}, nil
}

// Run performs one simulation and blocks until it has finished and every
// device is disconnected. The returned error is non-nil only when the
// connect gate failed.
func (s *SimulatorService) Run(ctx context.Context) (fleet.Result, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fleet.Result{}, ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	if s.stopped {
		cancel()
	}
	s.mu.Unlock()

	defer func() {
		cancel()
		close(done)
	}()

	s.console.Banner(len(s.sessions), s.config.Simulation.Duration, s.config.Simulation.TickInterval,
		s.config.Iterations(), s.config.Simulation.Sink)

	res, err := s.orchestrator.Run(ctx)

	if s.workbook != nil {
		if serr := s.workbook.Save(res); serr != nil {
			s.logger.Error("Failed to save report workbook", zap.Error(serr))
		} else {
			s.logger.Info("Report workbook saved", zap.String("path", s.workbook.Path()))
		}
	}

	s.console.Result(res, err)
	s.logger.Info("Simulation finished",
		zap.String("outcome", res.Outcome.String()),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", res.Elapsed()),
	)
	return res, err
}

// Stop interrupts a run in progress and waits for its teardown. A Stop that
// arrives before Run makes the later Run end as interrupted without
// publishing.
func (s *SimulatorService) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	s.logger.Info("Stopping simulation")
	cancel()
	<-done
}
