// Package pipeline owns the live estimator. A single goroutine drains the
// inertial and camera channels, feeds the estimator, maintains the trail
// and publishes snapshots for readers.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/monitoring"
	"github.com/banshee-data/dpoint/internal/replay"
	"github.com/banshee-data/dpoint/internal/timeutil"
	"github.com/banshee-data/dpoint/internal/trail"
	"gonum.org/v1/gonum/spatial/r3"
)

// Recorder persists accepted inputs and the trajectory produced from them.
type Recorder interface {
	RecordIMUSample(s fusion.IMUSample) error
	RecordPoseMeasurement(m fusion.PoseMeasurement) error
	RecordTrajectory(pts []replay.TrajectoryPoint) error
}

// Snapshot is a consistent view of the pipeline at one instant. Tracking
// is set once a camera pose has been accepted and cleared by a divergence
// reset until the next inertial step or camera pose rebuilds the state.
type Snapshot struct {
	Tracking     bool         `json:"tracking"`
	Pose         fusion.Pose  `json:"pose"`
	Tip          r3.Vec       `json:"tip"`
	Stats        fusion.Stats `json:"stats"`
	DroppedIMU   int64        `json:"dropped_imu"`
	DroppedPoses int64        `json:"dropped_poses"`
	RecordErrors int64        `json:"record_errors"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Options tunes a Pipeline.
type Options struct {
	// Axes maps raw inertial samples into the camera frame.
	Axes func(fusion.IMUSample) fusion.IMUSample
	// Recorder, if set, receives every accepted input and output.
	Recorder Recorder
	// Clock stamps snapshots. Defaults to the wall clock.
	Clock timeutil.Clock
}

// Pipeline drives one estimator from two producers.
type Pipeline struct {
	est   *fusion.Estimator
	trail *trail.Trail
	opts  Options

	lastIMU, lastPose   float64
	haveIMU, havePose   bool
	tracking            bool
	droppedIMU, dropped int64
	recordErrors        int64

	mu   sync.RWMutex
	snap Snapshot
}

// New returns a pipeline around est that draws into tr.
func New(est *fusion.Estimator, tr *trail.Trail, opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	p := &Pipeline{est: est, trail: tr, opts: opts}
	p.publish()
	return p
}

// Trail returns the trail the pipeline draws into.
func (p *Pipeline) Trail() *trail.Trail { return p.trail }

// TrailTail returns a copy of the newest n trail points.
func (p *Pipeline) TrailTail(n int) []r3.Vec { return p.trail.Tail(n) }

// Snapshot returns the latest published state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Run consumes imu and poses until ctx is cancelled or both channels are
// closed. It must be called from exactly one goroutine.
func (p *Pipeline) Run(ctx context.Context, imu <-chan fusion.IMUSample, poses <-chan fusion.PoseMeasurement) error {
	for imu != nil || poses != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-imu:
			if !ok {
				imu = nil
				continue
			}
			p.handleIMU(s)
		case m, ok := <-poses:
			if !ok {
				poses = nil
				continue
			}
			p.handlePose(m)
		}
	}
	return nil
}

func (p *Pipeline) handleIMU(s fusion.IMUSample) {
	defer p.publish()
	if p.haveIMU && s.Time < p.lastIMU {
		p.droppedIMU++
		monitoring.Verbosef("pipeline: dropping stale imu seq=%d t=%.4f < %.4f", s.Seq, s.Time, p.lastIMU)
		return
	}
	if p.opts.Axes != nil {
		s = p.opts.Axes(s)
	}
	if err := p.est.UpdateIMU(s); err != nil {
		p.droppedIMU++
		monitoring.Logf("pipeline: %v", err)
		return
	}
	p.lastIMU, p.haveIMU = s.Time, true
	p.tracking = p.havePose && p.est.Tracking()
	p.record(func(r Recorder) error { return r.RecordIMUSample(s) })

	if p.havePose {
		tip := p.est.TipPosition()
		p.trail.Append(tip)
		p.record(func(r Recorder) error {
			return r.RecordTrajectory([]replay.TrajectoryPoint{{Time: s.Time, Position: tip, Source: replay.SourceIMU}})
		})
	}
}

func (p *Pipeline) handlePose(m fusion.PoseMeasurement) {
	defer p.publish()
	if p.havePose && m.Time == p.lastPose {
		p.dropped++
		return
	}
	resets := p.est.Stats().DivergenceResets
	pts, err := p.est.UpdateCamera(m)
	if err != nil {
		p.dropped++
		monitoring.Logf("pipeline: %v", err)
		return
	}
	p.lastPose, p.havePose = m.Time, true
	p.tracking = p.est.Stats().DivergenceResets == resets
	p.record(func(r Recorder) error { return r.RecordPoseMeasurement(m) })

	if len(pts) > 0 {
		p.trail.Replace(pts)
		last := pts[len(pts)-1]
		p.record(func(r Recorder) error {
			return r.RecordTrajectory([]replay.TrajectoryPoint{{Time: m.Time, Position: last, Source: replay.SourceCamera}})
		})
	}
}

func (p *Pipeline) record(fn func(Recorder) error) {
	if p.opts.Recorder == nil {
		return
	}
	if err := fn(p.opts.Recorder); err != nil {
		p.recordErrors++
		// Log the first failure and then every thousandth.
		if p.recordErrors%1000 == 1 {
			monitoring.Logf("pipeline: record failed (%d so far): %v", p.recordErrors, err)
		}
	}
}

// errorCounter is implemented by recorders that fail out of band.
type errorCounter interface {
	Errors() int64
}

func (p *Pipeline) publish() {
	recordErrors := p.recordErrors
	if ec, ok := p.opts.Recorder.(errorCounter); ok {
		recordErrors += ec.Errors()
	}
	snap := Snapshot{
		Tracking:     p.tracking,
		Pose:         p.est.Pose(),
		Tip:          p.est.TipPosition(),
		Stats:        p.est.Stats(),
		DroppedIMU:   p.droppedIMU,
		DroppedPoses: p.dropped,
		RecordErrors: recordErrors,
		UpdatedAt:    p.opts.Clock.Now(),
	}
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
}
