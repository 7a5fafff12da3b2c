package fusion

import (
	"fmt"

	"github.com/banshee-data/dpoint/internal/monitoring"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Estimator fuses inertial samples and delayed camera poses into a smooth
// tip trajectory. It is not safe for concurrent use; exactly one goroutine
// should own it.
type Estimator struct {
	cfg        Config
	q          *mat.Dense
	imu        IMUModel
	camera     CameraModel
	fs         FilterState
	history    *History
	continuity Continuity
	stats      Stats
}

// NewEstimator validates cfg and returns an estimator in the cold state.
func NewEstimator(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, _ := ParseFusionMode(string(cfg.Mode))
	cfg.Mode = mode
	if cfg.MinEigenvalue <= 0 {
		cfg.MinEigenvalue = DefaultMinEigenvalue
	}
	camera, err := NewCameraModel(cfg.Mode, cfg.CameraNoisePos, cfg.CameraNoiseOrientation, cfg.MinEigenvalue)
	if err != nil {
		return nil, err
	}
	return &Estimator{
		cfg:     cfg,
		q:       cfg.ProcessNoise.Matrix(),
		imu:     NewIMUModel(cfg.AccelNoise, cfg.GyroNoise, cfg.Gravity, cfg.MinEigenvalue),
		camera:  camera,
		fs:      NewFilterState(),
		history: NewHistory(cfg.HistoryCapacity()),
	}, nil
}

// Config returns the configuration the estimator was built with.
func (e *Estimator) Config() Config { return e.cfg }

// Stats returns event counters.
func (e *Estimator) Stats() Stats { return e.stats }

// HistoryLen returns the number of retained history items.
func (e *Estimator) HistoryLen() int { return e.history.Len() }

// Tracking reports whether the estimator holds any history.
func (e *Estimator) Tracking() bool { return e.history.Len() > 0 }

// State returns a copy of the current filter state.
func (e *Estimator) State() FilterState { return e.fs.Clone() }

// Pose returns the current position and orientation.
func (e *Estimator) Pose() Pose {
	return Pose{Position: e.fs.Position(), Orientation: e.fs.Orientation()}
}

// TipPosition returns the current tip position.
func (e *Estimator) TipPosition() r3.Vec {
	return TipPosition(e.fs, e.cfg.TipOffset)
}

// Reset returns the estimator to its construction-time state. Counters and
// the continuity reference are kept.
func (e *Estimator) Reset() {
	e.fs = NewFilterState()
	e.history.Clear()
}

// UpdateIMU predicts one step and corrects it with s.
func (e *Estimator) UpdateIMU(s IMUSample) error {
	if !s.Finite() {
		return fmt.Errorf("%w: seq=%d", ErrNonFiniteSample, s.Seq)
	}
	e.step(s)
	e.stats.IMUUpdates++
	return nil
}

func (e *Estimator) step(s IMUSample) {
	predicted := Predict(e.fs, e.cfg.Dt, e.q)
	corrected := e.imu.Fuse(predicted, s.Accel, s.Gyro)
	if !corrected.isFinite() {
		monitoring.Logf("fusion: non-finite state after imu seq=%d, resetting", s.Seq)
		e.fs = stateFromPose(e.fs.Position(), e.fs.Orientation())
		e.history.Clear()
		e.stats.DivergenceResets++
		return
	}
	corrected, flipped := e.continuous(corrected)
	if flipped {
		predicted = withFlippedQuaternion(predicted)
	}
	e.fs = corrected
	sample := s
	e.history.Push(HistoryItem{Corrected: corrected.Clone(), Predicted: predicted, Sample: &sample})
}

// UpdateCamera fuses a delayed camera pose and returns the revised tip
// positions in chronological order: smoothed history followed by replayed
// steps. Cold starts and divergence resets return a single position.
func (e *Estimator) UpdateCamera(m PoseMeasurement) ([]r3.Vec, error) {
	if !m.Finite() {
		return nil, fmt.Errorf("%w: t=%v", ErrNonFiniteMeasurement, m.Time)
	}
	e.stats.CameraUpdates++
	measured := m.Orientation()

	if e.history.Len() == 0 {
		q, _ := NearestQuaternion(e.fs.Orientation(), measured)
		e.fs, _ = e.continuous(Predict(stateFromPose(m.Position, q), e.cfg.Dt, e.q))
		e.stats.ColdStarts++
		monitoring.Logf("fusion: cold start at t=%.4f pos=(%.4f, %.4f, %.4f)", m.Time, m.Position.X, m.Position.Y, m.Position.Z)
		return []r3.Vec{e.TipPosition()}, nil
	}

	// Roll back the steps taken after the frame was captured.
	n := min(e.history.Len()-1, e.cfg.CameraDelay)
	replay := make([]HistoryItem, n)
	for i := n - 1; i >= 0; i-- {
		replay[i] = e.history.PopNewest()
	}
	anchor := e.history.Newest()
	// The popped steps may sit on the other hemisphere; align against the
	// anchor so its corrected and predicted quaternions keep one sign.
	e.continuity.Reset(anchor.Corrected.Orientation())

	q, orientationErr := NearestQuaternion(anchor.Corrected.Orientation(), measured)
	positionErr := r3.Norm(r3.Sub(m.Position, anchor.Corrected.Position()))
	if positionErr > e.cfg.ResetPosition || orientationErr > e.cfg.ResetOrientation {
		monitoring.Logf("resetting state: pos=%.4fm or=%.4f", positionErr, orientationErr)
		e.fs, _ = e.continuous(stateFromPose(m.Position, q))
		e.history.Clear()
		e.stats.DivergenceResets++
		return []r3.Vec{e.TipPosition()}, nil
	}

	corrected, _ := e.continuous(e.camera.Correct(anchor.Corrected, m.Position, q))
	anchor.Corrected = corrected.Clone()
	e.fs = corrected
	e.stats.Fusions++

	smoothed := Smooth(e.history.SmoothingItems(), e.cfg.Dt, e.cfg.MinEigenvalue)
	out := make([]r3.Vec, 0, len(smoothed)+len(replay))
	for _, s := range smoothed {
		out = append(out, TipPosition(s, e.cfg.TipOffset))
	}
	for _, item := range replay {
		if item.Sample != nil {
			e.step(*item.Sample)
			e.stats.ReplayedSamples++
		}
		out = append(out, e.TipPosition())
	}
	monitoring.Verbosef("fusion: camera t=%.4f fused, %d smoothed, %d replayed", m.Time, len(smoothed), len(replay))
	return out, nil
}

// continuous sign-aligns the quaternion of fs with the last accepted
// orientation and reports whether it had to be negated.
func (e *Estimator) continuous(fs FilterState) (FilterState, bool) {
	q := fs.Orientation()
	if aligned := e.continuity.Align(q); aligned != q {
		return withFlippedQuaternion(fs), true
	}
	return fs, false
}

// TipPosition returns the position of a body-frame offset under fs.
func TipPosition(fs FilterState, offset r3.Vec) r3.Vec {
	return r3.Add(fs.Position(), Rotate(fs.Orientation(), offset))
}
