package report

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/config"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/fleet"
	"github.com/ruda0008/rideau-canal-sensor-simulation/internal/sensor"
	"github.com/xuri/excelize/v2"
)

const (
	readingsSheet = "Readings"
	summarySheet  = "Summary"
)

var readingsHeader = []interface{}{
	"Timestamp", "Device ID", "Location", "Status",
	"Ice Thickness (cm)", "Surface Temp (°C)", "Snow Accumulation (cm)", "External Temp (°C)",
}

// Workbook records every delivered reading into an xlsx file
type Workbook struct {
	mu   sync.Mutex
	file *excelize.File
	path string
	row  int
	err  error // first write error, returned by Save
}

// NewWorkbook prepares an empty workbook to be written to path on Save
func NewWorkbook(path string) (*Workbook, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", readingsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create readings sheet: %w", err)
	}
	if err := f.SetSheetRow(readingsSheet, "A1", &readingsHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return &Workbook{file: f, path: path, row: 1}, nil
}

// Path destination file
func (w *Workbook) Path() string { return w.path }

// Published implements session.Reporter
func (w *Workbook) Published(_ config.DeviceConfig, r sensor.Reading) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err == nil {
		err = w.file.SetSheetRow(readingsSheet, cell, &[]interface{}{
			r.Timestamp, r.DeviceID, r.Location, string(r.Safety),
			r.IceThickness, r.SurfaceTemp, r.SnowAccumulation, r.ExternalTemp,
		})
	}
	if err != nil && w.err == nil {
		w.err = fmt.Errorf("failed to write row %d: %w", w.row, err)
	}
}

func (w *Workbook) Connected(config.DeviceConfig)               {}
func (w *Workbook) ConnectFailed(config.DeviceConfig, error)    {}
func (w *Workbook) PublishFailed(config.DeviceConfig, error)    {}
func (w *Workbook) Disconnected(config.DeviceConfig)            {}
func (w *Workbook) DisconnectFailed(config.DeviceConfig, error) {}

// Save writes the summary sheet and the file, then releases the workbook
func (w *Workbook) Save(res fleet.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.file.Close()

	if w.err != nil {
		return w.err
	}
	if _, err := w.file.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Outcome", res.Outcome.String()},
		{"Ticks", res.Ticks},
		{"Planned ticks", res.Iterations},
		{"Messages sent", res.Sent},
		{"Messages failed", res.Failed},
		{"Duration (s)", res.Elapsed().Seconds()},
	}
	locations := make([]string, 0, len(res.PerLocation))
	for loc := range res.PerLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	for _, loc := range locations {
		rows = append(rows, []interface{}{"Messages from " + loc, res.PerLocation[loc]})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}

	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save %s: %w", w.path, err)
	}
	return nil
}
