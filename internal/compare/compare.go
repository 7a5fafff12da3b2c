// Package compare runs the fusion workflows side by side over one recorded
// session and summarises the resulting trajectories.
package compare

import (
	"fmt"
	"math"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/replay"
	"gonum.org/v1/gonum/stat"
)

// Workflow names a way of turning a session into a trajectory.
type Workflow string

const (
	CVOnly    Workflow = "cv_only"   // measured poses, no filtering
	Coupled   Workflow = "coupled"   // estimator with the 7-D camera model
	Decoupled Workflow = "decoupled" // estimator with the position-only camera model
)

// Workflows lists every workflow in reporting order.
var Workflows = []Workflow{CVOnly, Coupled, Decoupled}

// JitterWindow is the centred rolling-mean window used for Z jitter.
const JitterWindow = 10

// Summary describes one trajectory.
type Summary struct {
	Count   int     `json:"count"`
	MeanX   float64 `json:"mean_x"`
	MeanY   float64 `json:"mean_y"`
	MeanZ   float64 `json:"mean_z"`
	ZJitter float64 `json:"z_jitter"` // RMS of z about its centred rolling mean
}

// Result is the output of one workflow.
type Result struct {
	Workflow Workflow                 `json:"workflow"`
	Points   []replay.TrajectoryPoint `json:"-"`
	Summary  Summary                  `json:"summary"`
}

// Options configures a comparison.
type Options struct {
	Config fusion.Config
	// Axes is applied to inertial samples for the filtered workflows.
	Axes func(fusion.IMUSample) fusion.IMUSample
}

// Run executes every workflow over events, which must be sorted.
func Run(events []replay.Event, opts Options) ([]Result, error) {
	results := make([]Result, 0, len(Workflows))
	for _, w := range Workflows {
		r, err := RunWorkflow(w, events, opts)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", w, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// RunWorkflow executes a single workflow over events.
func RunWorkflow(w Workflow, events []replay.Event, opts Options) (Result, error) {
	var pts []replay.TrajectoryPoint
	switch w {
	case CVOnly:
		var kept []replay.Event
		for _, ev := range events {
			if ev.Time >= 0 {
				kept = append(kept, ev)
			}
		}
		pts = replay.RawPoses(kept, opts.Config.TipOffset)
	case Coupled, Decoupled:
		cfg := opts.Config
		cfg.Mode = fusion.FusionDecoupled
		if w == Coupled {
			cfg.Mode = fusion.FusionCoupled
		}
		est, err := fusion.NewEstimator(cfg)
		if err != nil {
			return Result{}, err
		}
		pts = replay.Run(est, events, replay.Options{Axes: opts.Axes, SkipNegativeTime: true})
	default:
		return Result{}, fmt.Errorf("unknown workflow %q", w)
	}
	return Result{Workflow: w, Points: pts, Summary: Summarize(pts)}, nil
}

// Summarize computes count, per-axis means and Z jitter.
func Summarize(pts []replay.TrajectoryPoint) Summary {
	s := Summary{Count: len(pts)}
	if len(pts) == 0 {
		return s
	}
	xs, ys, zs := axes(pts)
	s.MeanX = stat.Mean(xs, nil)
	s.MeanY = stat.Mean(ys, nil)
	s.MeanZ = stat.Mean(zs, nil)
	s.ZJitter = Jitter(zs, JitterWindow)
	return s
}

// Jitter returns the RMS of v minus its centred rolling mean. A sample
// contributes only when its full window fits inside v; for an even window
// the centre sits just after the midpoint. It returns 0 when no window fits.
func Jitter(v []float64, window int) float64 {
	if window < 1 || len(v) < window {
		return 0
	}
	var residuals []float64
	for i := range v {
		lo := i - window/2
		hi := lo + window
		if lo < 0 || hi > len(v) {
			continue
		}
		residuals = append(residuals, v[i]-stat.Mean(v[lo:hi], nil))
	}
	if len(residuals) == 0 {
		return 0
	}
	var sum float64
	for _, r := range residuals {
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(residuals)))
}

// Detrended returns z minus its centred rolling mean, with NaN where the
// window does not fit. Used for jitter plots.
func Detrended(pts []replay.TrajectoryPoint, window int) []float64 {
	_, _, zs := axes(pts)
	out := make([]float64, len(zs))
	for i := range zs {
		lo := i - window/2
		hi := lo + window
		if window < 1 || lo < 0 || hi > len(zs) {
			out[i] = math.NaN()
			continue
		}
		out[i] = zs[i] - stat.Mean(zs[lo:hi], nil)
	}
	return out
}

func axes(pts []replay.TrajectoryPoint) (xs, ys, zs []float64) {
	xs = make([]float64, len(pts))
	ys = make([]float64, len(pts))
	zs = make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i], zs[i] = p.Position.X, p.Position.Y, p.Position.Z
	}
	return xs, ys, zs
}
