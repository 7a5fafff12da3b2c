// Package plot renders trajectories as PNG plots (gonum/plot) and HTML
// charts (go-echarts).
package plot

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/banshee-data/dpoint/internal/replay"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Axis selects one coordinate of a trajectory.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	return [...]string{"X", "Y", "Z"}[a]
}

func (a Axis) of(p replay.TrajectoryPoint) float64 {
	switch a {
	case AxisX:
		return p.Position.X
	case AxisY:
		return p.Position.Y
	default:
		return p.Position.Z
	}
}

// Line is one named series of XY data.
type Line struct {
	Name string
	XY   plotter.XYs
}

// TopDown projects a trajectory onto the XY plane.
func TopDown(name string, pts []replay.TrajectoryPoint) Line {
	xy := make(plotter.XYs, 0, len(pts))
	for _, p := range pts {
		xy = append(xy, plotter.XY{X: p.Position.X, Y: p.Position.Y})
	}
	return Line{Name: name, XY: xy}
}

// OverTime plots one axis against time relative to the first point.
func OverTime(name string, pts []replay.TrajectoryPoint, axis Axis) Line {
	xy := make(plotter.XYs, 0, len(pts))
	for _, p := range pts {
		xy = append(xy, plotter.XY{X: p.Time - pts[0].Time, Y: axis.of(p)})
	}
	return Line{Name: name, XY: xy}
}

// Values pairs v with the times of pts, relative to the first point,
// skipping NaN entries.
func Values(name string, pts []replay.TrajectoryPoint, v []float64) Line {
	xy := make(plotter.XYs, 0, len(v))
	for i, y := range v {
		if i >= len(pts) || math.IsNaN(y) {
			continue
		}
		xy = append(xy, plotter.XY{X: pts[i].Time - pts[0].Time, Y: y})
	}
	return Line{Name: name, XY: xy}
}

// WritePNG draws lines onto one plot and saves it to path. The image
// format follows the file extension.
func WritePNG(path, title, xLabel, yLabel string, lines ...Line) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	colors := generateColors(len(lines))
	for i, l := range lines {
		if len(l.XY) == 0 {
			continue
		}
		line, err := plotter.NewLine(l.XY)
		if err != nil {
			return fmt.Errorf("line %q: %w", l.Name, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(l.Name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// WriteXY saves a top-down plot of each trajectory.
func WriteXY(path, title string, series map[string][]replay.TrajectoryPoint) error {
	lines := make([]Line, 0, len(series))
	for _, name := range sortedKeys(series) {
		lines = append(lines, TopDown(name, series[name]))
	}
	return WritePNG(path, title, "X (m)", "Y (m)", lines...)
}

// WriteTimeSeries saves the three position components against time.
func WriteTimeSeries(path, title string, pts []replay.TrajectoryPoint) error {
	return WritePNG(path, title, "Time (s)", "Position (m)",
		OverTime("x", pts, AxisX), OverTime("y", pts, AxisY), OverTime("z", pts, AxisZ))
}

func sortedKeys(m map[string][]replay.TrajectoryPoint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// generateColors returns n evenly spaced hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		q := l + s - l*s
		if l < 0.5 {
			q = l * (1 + s)
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
