package service

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/publisher"
)

// CheckError one or more devices cannot be started
type CheckError struct {
	Problems int
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%d device(s) not ready", e.Problems)
}

// CheckDevices prints each device with the state of its credential without
// opening any connection. IoT Hub sinks also have the connection string
// parsed.
func CheckDevices(cfg *config.Config, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "DEVICE\tLOCATION\tVARIABLE\tCREDENTIAL\n")

	problems := 0
	for _, d := range cfg.Devices {
		state, ok := credentialState(cfg.Simulation.Sink, d)
		if !ok {
			problems++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.DeviceID, d.Location, d.CredentialEnvVar(), state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nSink: %s, %d readings per sensor every %s\n",
		cfg.Simulation.Sink, cfg.Iterations(), cfg.Simulation.TickInterval)

	if problems > 0 {
		return &CheckError{Problems: problems}
	}
	return nil
}

func credentialState(sink string, d config.DeviceConfig) (string, bool) {
	if d.Credential == "" {
		return "missing", false
	}
	if sink != config.SinkIoTHubMQTT && sink != config.SinkIoTHubHTTP {
		return "set", true
	}

	cs, err := publisher.ParseConnectionString(d.Credential)
	if err != nil {
		return "invalid: " + err.Error(), false
	}
	if cs.DeviceID != d.DeviceID {
		return fmt.Sprintf("ok (hub device %s)", cs.DeviceID), true
	}
	return "ok", true
}
