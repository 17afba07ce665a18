// Package telemetry records control ticks and exports them as CSV and plots.
package telemetry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cjeanneret/PoleGo/internal/debug"
	"github.com/cjeanneret/PoleGo/internal/logic/control"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"t", "angle", "angular_velocity", "position", "linear_velocity", "reward", "direction"}

// ErrNoSamples is returned when there is nothing to export.
var ErrNoSamples = errors.New("no samples recorded")

// Recorder keeps every tick it observes. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	ticks []control.Tick
	limit int
}

// NewRecorder keeps at most limit ticks, dropping the oldest. 0 = unbounded.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// ObserveTick implements control.Observer.
func (r *Recorder) ObserveTick(t control.Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, t)
	if r.limit > 0 && len(r.ticks) > r.limit {
		r.ticks = r.ticks[len(r.ticks)-r.limit:]
	}
}

// Samples returns a copy of the recorded ticks, oldest first.
func (r *Recorder) Samples() []control.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]control.Tick(nil), r.ticks...)
}

// Reset drops all recorded ticks.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 15, 64)
}

// WriteCSV writes one row per tick to path, creating parent directories.
// Monitor ticks have an empty direction column.
func (r *Recorder) WriteCSV(path string) error {
	ticks := r.Samples()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, t := range ticks {
		dir := ""
		if t.Direction.Valid() {
			dir = t.Direction.String()
		}
		row := []string{
			formatFloat(t.State.Timestamp),
			formatFloat(t.State.Angle),
			formatFloat(t.State.AngularVelocity),
			formatFloat(t.State.Position),
			formatFloat(t.State.LinearVelocity),
			formatFloat(t.Reward),
			dir,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", t.Seq, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	debug.Verbose("Telemetry: %d rows written to %s", len(ticks), path)
	return f.Close()
}

// Plot file names written by SavePlots.
const (
	AnglePlot    = "angle.png"
	PositionPlot = "position.png"
	RewardPlot   = "reward.png"
)

// SavePlots writes angle, position and reward traces over time as PNGs in dir.
func (r *Recorder) SavePlots(dir string) error {
	ticks := r.Samples()
	if len(ticks) == 0 {
		return ErrNoSamples
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}

	series := []struct {
		file, title, ylabel string
		value               func(control.Tick) float64
	}{
		{AnglePlot, "Pole angle", "angle (rad)", func(t control.Tick) float64 { return t.State.Angle }},
		{PositionPlot, "Cart position", "position (m)", func(t control.Tick) float64 { return t.State.Position }},
		{RewardPlot, "Reward", "reward", func(t control.Tick) float64 { return t.Reward }},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(ticks))
		for i, t := range ticks {
			pts[i].X = t.State.Timestamp
			pts[i].Y = s.value(t)
		}
		if err := saveLinePlot(filepath.Join(dir, s.file), s.title, s.ylabel, pts); err != nil {
			return fmt.Errorf("plot %s: %w", s.file, err)
		}
	}
	debug.Verbose("Telemetry: plots written to %s", dir)
	return nil
}

func saveLinePlot(path, title, ylabel string, pts plotter.XYs) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = ylabel

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.LineStyle.Width = vg.Points(1.5)
	p.Add(line)
	p.Add(plotter.NewGrid())

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
