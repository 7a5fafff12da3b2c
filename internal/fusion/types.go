package fusion

import (
	"errors"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrNonFiniteSample is returned when an inertial sample holds NaN or Inf.
	ErrNonFiniteSample = errors.New("fusion: non-finite inertial sample")
	// ErrNonFiniteMeasurement is returned when a camera pose holds NaN or Inf.
	ErrNonFiniteMeasurement = errors.New("fusion: non-finite pose measurement")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("fusion: invalid config")
)

// IMUSample is one decoded inertial reading.
type IMUSample struct {
	Seq      uint64  // arrival order
	Time     float64 // seconds
	Accel    r3.Vec  // g
	Gyro     r3.Vec  // rad/s
	Pressure float64 // tip pressure, passed through untouched
}

// Finite reports whether the accelerometer and gyroscope readings are finite.
func (s IMUSample) Finite() bool {
	return finiteVec(s.Accel) && finiteVec(s.Gyro)
}

// PoseMeasurement is one camera-derived pose of the stylus body.
type PoseMeasurement struct {
	Time     float64
	Position r3.Vec     // metres, camera frame
	Rotation [9]float64 // row-major body-to-camera rotation
}

// Finite reports whether every field of the pose is finite.
func (m PoseMeasurement) Finite() bool {
	if !finiteVec(m.Position) {
		return false
	}
	for _, v := range m.Rotation {
		if !finite(v) {
			return false
		}
	}
	return true
}

// Orientation returns the measured orientation as a unit quaternion.
func (m PoseMeasurement) Orientation() quat.Number {
	return QuaternionFromRotation(m.Rotation)
}

// Pose is a position and orientation snapshot.
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number
}

// Stats counts estimator events since construction.
type Stats struct {
	IMUUpdates       int `json:"imu_updates"`
	CameraUpdates    int `json:"camera_updates"`
	Fusions          int `json:"fusions"`
	ColdStarts       int `json:"cold_starts"`
	DivergenceResets int `json:"divergence_resets"`
	ReplayedSamples  int `json:"replayed_samples"`
}
