package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/fleet"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/sensor"
)

const ruleWidth = 90

// Console writes the live status table. Each call writes whole lines under
// a mutex so concurrent sessions never interleave.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console reporter on w
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) println(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(c.w, l)
	}
}

func rule() string { return strings.Repeat("=", ruleWidth) }

var safetyMarkers = map[sensor.Safety]string{
	sensor.SafetySafe:    "🟢",
	sensor.SafetyCaution: "🟡",
	sensor.SafetyUnsafe:  "🔴",
}

// FormatStatus one status table row
func FormatStatus(r sensor.Reading) string {
	return fmt.Sprintf("%s %-7s | %-15s | Ice: %5.2fcm | Surf: %5.2f°C | Snow: %5.2fcm | Ext: %5.2f°C",
		safetyMarkers[r.Safety], r.Safety, r.Location, r.IceThickness, r.SurfaceTemp, r.SnowAccumulation, r.ExternalTemp)
}

// Connected implements session.Reporter
func (c *Console) Connected(d config.DeviceConfig) {
	c.println(fmt.Sprintf("✓ Connected: %s (%s)", d.Location, d.DeviceID))
}

// ConnectFailed implements session.Reporter
func (c *Console) ConnectFailed(d config.DeviceConfig, err error) {
	c.println(fmt.Sprintf("✗ Connection failed for %s: %v", d.Location, err))
}

// Published implements session.Reporter
func (c *Console) Published(_ config.DeviceConfig, r sensor.Reading) {
	c.println(FormatStatus(r))
}

// PublishFailed implements session.Reporter
func (c *Console) PublishFailed(d config.DeviceConfig, err error) {
	c.println(fmt.Sprintf("✗ Send failed for %s: %v", d.Location, err))
}

// Disconnected implements session.Reporter
func (c *Console) Disconnected(d config.DeviceConfig) {
	c.println(fmt.Sprintf("✓ Disconnected: %s", d.Location))
}

// DisconnectFailed implements session.Reporter
func (c *Console) DisconnectFailed(d config.DeviceConfig, err error) {
	c.println(fmt.Sprintf("✗ Disconnect failed for %s: %v", d.Location, err))
}

// Banner run plan shown before connecting
func (c *Console) Banner(devices int, duration, tick time.Duration, iterations int, sink string) {
	c.println(
		rule(),
		"RIDEAU CANAL SKATEWAY - IoT SENSOR SIMULATOR",
		rule(),
		fmt.Sprintf("Simulating %d locations for %s via %s", devices, duration, sink),
		fmt.Sprintf("Sending data every %s (%d readings per sensor)", tick, iterations),
		fmt.Sprintf("Total messages: %d", iterations*devices),
		"",
		"Connecting...",
	)
}

// Header status table header
func (c *Console) Header() {
	c.println(
		"",
		rule(),
		"   STATUS  | LOCATION        | ICE THICKNESS | SURFACE TEMP | SNOW ACCUM | EXTERNAL TEMP",
		rule(),
	)
}

// MissingCredentials lists the unset connection string variables
func (c *Console) MissingCredentials(vars []string) {
	lines := []string{"✗ ERROR: Missing environment variables!", "", "The following connection strings are not set:"}
	for _, v := range vars {
		lines = append(lines, "  - "+v)
	}
	lines = append(lines,
		"",
		"Set them in the environment or in a .env file.",
		"Get connection strings from: Azure Portal > IoT Hub > Devices > Primary Connection String",
	)
	c.println(lines...)
}

// Result closing section for a finished run
func (c *Console) Result(res fleet.Result, runErr error) {
	switch res.Outcome {
	case fleet.OutcomeAborted:
		c.println(
			"",
			fmt.Sprintf("✗ ERROR: %v", runErr),
			"Check your connection strings in the .env file.",
		)
		return
	case fleet.OutcomeInterrupted:
		c.println("", "✗ Simulation interrupted by user")
	case fleet.OutcomeCompleted:
		c.println("", rule(), "✓ SIMULATION COMPLETE!")
	}

	lines := []string{
		fmt.Sprintf("  Total messages sent: %d", res.Sent),
		fmt.Sprintf("  Failed messages: %d", res.Failed),
		fmt.Sprintf("  Ticks: %d of %d", res.Ticks, res.Iterations),
		fmt.Sprintf("  Duration: %s", res.Elapsed().Round(time.Second)),
	}
	locations := make([]string, 0, len(res.PerLocation))
	for loc := range res.PerLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	for _, loc := range locations {
		lines = append(lines, fmt.Sprintf("  Messages from %s: %d", loc, res.PerLocation[loc]))
	}
	lines = append(lines, rule())
	c.println(lines...)
}
