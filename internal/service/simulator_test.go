package service

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/fleet"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// memPublisher keeps delivered payloads in memory
type memPublisher struct {
	mu         sync.Mutex
	connectErr error
	onSend     func()
	payloads   [][]byte
	closed     bool
}

func (m *memPublisher) Connect(context.Context) error { return m.connectErr }

func (m *memPublisher) Send(_ context.Context, msg publisher.Message) error {
	if m.onSend != nil {
		m.onSend()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, msg.Payload)
	return nil
}

func (m *memPublisher) Disconnect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func testConfig(duration, tick time.Duration) *config.Config {
	cfg := &config.Config{}
	for _, d := range config.DefaultDevices {
		d.Credential = "HostName=hub.azure-devices.net;DeviceId=" + d.DeviceID + ";SharedAccessKey=c2VjcmV0"
		cfg.Devices = append(cfg.Devices, d)
	}
	cfg.Simulation.Duration = duration
	cfg.Simulation.TickInterval = tick
	cfg.Simulation.Seed = 42
	cfg.Simulation.Sink = config.SinkIoTHubMQTT
	return cfg
}

func fixedFactory(pubs map[string]*memPublisher) publisher.Factory {
	return func(d config.DeviceConfig) publisher.Publisher {
		return pubs[d.DeviceID]
	}
}

func newPubs() map[string]*memPublisher {
	return map[string]*memPublisher{
		"dows-lake-sensor":    {},
		"fifth-avenue-sensor": {},
		"nac-sensor":          {},
	}
}

func TestSimulatorService_RunCompletes(t *testing.T) {
	cfg := testConfig(30*time.Millisecond, 10*time.Millisecond)
	cfg.Simulation.ReportPath = filepath.Join(t.TempDir(), "readings.xlsx")
	pubs := newPubs()
	var out bytes.Buffer

	svc, err := NewSimulatorService(cfg, zap.NewNop(), WithOutput(&out), WithPublisherFactory(fixedFactory(pubs)))
	require.NoError(t, err)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fleet.OutcomeCompleted, res.Outcome)
	assert.Equal(t, 9, res.Sent)
	for id, p := range pubs {
		assert.Len(t, p.payloads, 3, id)
		assert.True(t, p.closed, id)
	}

	text := out.String()
	assert.Contains(t, text, "Simulating 3 locations")
	assert.Contains(t, text, "(3 readings per sensor)")
	assert.Contains(t, text, "Total messages: 9")
	assert.Contains(t, text, "✓ Connected: NAC (nac-sensor)")
	assert.Contains(t, text, "STATUS  | LOCATION")
	assert.Less(t, strings.Index(text, "✓ Connected"), strings.Index(text, "STATUS  | LOCATION"))
	assert.Contains(t, text, "✓ SIMULATION COMPLETE!")
	assert.Contains(t, text, "Messages from Fifth Avenue: 3")

	f, err := excelize.OpenFile(cfg.Simulation.ReportPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Readings")
	require.NoError(t, err)
	assert.Len(t, rows, 10, "header plus nine readings")

	_, err = svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestSimulatorService_SameSeedSameReadings(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC) }
	run := func() map[string]*memPublisher {
		pubs := newPubs()
		svc, err := NewSimulatorService(testConfig(20*time.Millisecond, 10*time.Millisecond), zap.NewNop(),
			WithOutput(&bytes.Buffer{}), WithPublisherFactory(fixedFactory(pubs)), WithClock(clock))
		require.NoError(t, err)
		_, err = svc.Run(context.Background())
		require.NoError(t, err)
		return pubs
	}

	first, second := run(), run()
	for id := range first {
		assert.Equal(t, first[id].payloads, second[id].payloads, id)
	}
}

func TestSimulatorService_MissingCredentials(t *testing.T) {
	cfg := testConfig(30*time.Second, 10*time.Second)
	cfg.Devices[0].Credential = ""
	cfg.Devices[2].Credential = ""
	var out bytes.Buffer

	svc, err := NewSimulatorService(cfg, zap.NewNop(), WithOutput(&out), WithPublisherFactory(fixedFactory(newPubs())))

	assert.Nil(t, svc)
	var missing *config.MissingCredentialsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"DOWS_LAKE_CONNECTION_STRING", "NAC_CONNECTION_STRING"}, missing.EnvVars())
	assert.Contains(t, out.String(), "  - DOWS_LAKE_CONNECTION_STRING\n  - NAC_CONNECTION_STRING\n")
}

func TestSimulatorService_ConnectGate(t *testing.T) {
	pubs := newPubs()
	pubs["fifth-avenue-sensor"].connectErr = errors.New("unauthorized")
	var out bytes.Buffer

	svc, err := NewSimulatorService(testConfig(30*time.Millisecond, 10*time.Millisecond), zap.NewNop(),
		WithOutput(&out), WithPublisherFactory(fixedFactory(pubs)))
	require.NoError(t, err)

	res, err := svc.Run(context.Background())

	var gate *fleet.GateError
	require.True(t, errors.As(err, &gate))
	assert.Equal(t, fleet.OutcomeAborted, res.Outcome)
	assert.Contains(t, out.String(), "✗ Connection failed for Fifth Avenue: unauthorized")
	assert.Contains(t, out.String(), "Check your connection strings")
	assert.NotContains(t, out.String(), "STATUS  | LOCATION")
	assert.True(t, pubs["nac-sensor"].closed)
	assert.Empty(t, pubs["nac-sensor"].payloads)
}

func TestSimulatorService_Stop(t *testing.T) {
	pubs := newPubs()
	firstSend := make(chan struct{})
	var once sync.Once
	pubs["nac-sensor"].onSend = func() { once.Do(func() { close(firstSend) }) }

	svc, err := NewSimulatorService(testConfig(time.Hour, 10*time.Minute), zap.NewNop(),
		WithOutput(&bytes.Buffer{}), WithPublisherFactory(fixedFactory(pubs)))
	require.NoError(t, err)

	type outcome struct {
		res fleet.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := svc.Run(context.Background())
		done <- outcome{res, err}
	}()

	select {
	case <-firstSend:
	case <-time.After(5 * time.Second):
		t.Fatal("first tick never ran")
	}
	svc.Stop()

	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.Equal(t, fleet.OutcomeInterrupted, o.res.Outcome)
		assert.Equal(t, 1, o.res.Ticks)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after Stop")
	}
	for id, p := range pubs {
		assert.True(t, p.closed, id)
	}
}

func TestSimulatorService_StopWithoutRun(t *testing.T) {
	svc, err := NewSimulatorService(testConfig(time.Second, time.Second), zap.NewNop(),
		WithOutput(&bytes.Buffer{}), WithPublisherFactory(fixedFactory(newPubs())))
	require.NoError(t, err)

	svc.Stop()
}

func TestSimulatorService_StopBeforeRun(t *testing.T) {
	pubs := newPubs()
	svc, err := NewSimulatorService(testConfig(time.Hour, 10*time.Minute), zap.NewNop(),
		WithOutput(&bytes.Buffer{}), WithPublisherFactory(fixedFactory(pubs)))
	require.NoError(t, err)

	svc.Stop()

	type outcome struct {
		res fleet.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := svc.Run(context.Background())
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.Equal(t, fleet.OutcomeInterrupted, o.res.Outcome)
		assert.Zero(t, o.res.Ticks)
		assert.Zero(t, o.res.Sent)
	case <-time.After(5 * time.Second):
		t.Fatal("run ignored the earlier Stop")
	}
	for id, p := range pubs {
		assert.Empty(t, p.payloads, id)
	}
}
