package fusion

import (
	"fmt"

	"github.com/banshee-data/dpoint/internal/config"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds the construction-time parameters of an Estimator.
type Config struct {
	Dt              float64    // nominal inertial sample period (s)
	SmoothingLength int        // history steps revised by the smoother
	CameraDelay     int        // assumed camera latency in inertial steps
	Mode            FusionMode // camera correction policy

	ProcessNoise ProcessNoise

	AccelNoise             float64 // accelerometer variance (g²)
	GyroNoise              float64 // gyroscope variance ((rad/s)²)
	CameraNoisePos         float64 // camera position variance (m²)
	CameraNoiseOrientation float64 // camera quaternion variance, coupled mode only

	ResetPosition    float64 // divergence threshold on position residual (m)
	ResetOrientation float64 // divergence threshold on quaternion distance

	Gravity   float64 // gravity seen by the accelerometer at rest (g)
	TipOffset r3.Vec  // tip position in the body frame (m)

	MinEigenvalue float64
}

// DefaultConfig returns the built-in configuration without reading a file.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	tip := cfg.GetTipOffsetM()
	return Config{
		Dt:              1 / cfg.GetIMURateHz(),
		SmoothingLength: cfg.GetSmoothingLength(),
		CameraDelay:     cfg.GetCameraDelay(),
		Mode:            FusionMode(cfg.GetFusionMode()),
		ProcessNoise: ProcessNoise{
			Pos:      cfg.GetProcessNoisePos(),
			Vel:      cfg.GetProcessNoiseVel(),
			Acc:      cfg.GetProcessNoiseAcc(),
			AV:       cfg.GetProcessNoiseAV(),
			Quat:     cfg.GetProcessNoiseQuat(),
			AccBias:  cfg.GetProcessNoiseAccBias(),
			GyroBias: cfg.GetProcessNoiseGyroBias(),
		},
		AccelNoise:             cfg.GetAccelNoise(),
		GyroNoise:              cfg.GetGyroNoise(),
		CameraNoisePos:         cfg.GetCameraNoisePos(),
		CameraNoiseOrientation: cfg.GetCameraNoiseOrientation(),
		ResetPosition:          cfg.GetResetPositionM(),
		ResetOrientation:       cfg.GetResetOrientation(),
		Gravity:                cfg.GetGravityG(),
		TipOffset:              r3.Vec{X: tip[0], Y: tip[1], Z: tip[2]},
		MinEigenvalue:          cfg.GetMinEigenvalue(),
	}
}

// HistoryCapacity is the maximum number of retained history items.
func (c Config) HistoryCapacity() int {
	return c.SmoothingLength + c.CameraDelay + 1
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	if !finite(c.Dt) || c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %v", ErrInvalidConfig, c.Dt)
	}
	if c.SmoothingLength < 0 {
		return fmt.Errorf("%w: smoothing length must be non-negative, got %d", ErrInvalidConfig, c.SmoothingLength)
	}
	if c.CameraDelay < 0 {
		return fmt.Errorf("%w: camera delay must be non-negative, got %d", ErrInvalidConfig, c.CameraDelay)
	}
	if _, err := ParseFusionMode(string(c.Mode)); err != nil {
		return err
	}
	positive := []struct {
		name string
		v    float64
	}{
		{"process noise pos", c.ProcessNoise.Pos},
		{"process noise vel", c.ProcessNoise.Vel},
		{"process noise acc", c.ProcessNoise.Acc},
		{"process noise av", c.ProcessNoise.AV},
		{"process noise quat", c.ProcessNoise.Quat},
		{"process noise acc bias", c.ProcessNoise.AccBias},
		{"process noise gyro bias", c.ProcessNoise.GyroBias},
		{"accel noise", c.AccelNoise},
		{"gyro noise", c.GyroNoise},
		{"camera position noise", c.CameraNoisePos},
		{"reset position", c.ResetPosition},
		{"reset orientation", c.ResetOrientation},
	}
	for _, p := range positive {
		if !finite(p.v) || p.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, p.name, p.v)
		}
	}
	if c.Mode == FusionCoupled && (!finite(c.CameraNoiseOrientation) || c.CameraNoiseOrientation <= 0) {
		return fmt.Errorf("%w: camera orientation noise must be positive, got %v", ErrInvalidConfig, c.CameraNoiseOrientation)
	}
	if !finite(c.Gravity) || c.Gravity < 0 {
		return fmt.Errorf("%w: gravity must be non-negative, got %v", ErrInvalidConfig, c.Gravity)
	}
	if !finiteVec(c.TipOffset) {
		return fmt.Errorf("%w: tip offset must be finite, got %v", ErrInvalidConfig, c.TipOffset)
	}
	return nil
}
