package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for estimator tuning.
// Every field is optional; the Get* accessors fall back to the built-in
// defaults so partial files are safe.
type TuningConfig struct {
	// Estimator timing
	IMURateHz       *float64 `json:"imu_rate_hz,omitempty"`
	SmoothingLength *int     `json:"smoothing_length,omitempty"`
	CameraDelay     *int     `json:"camera_delay,omitempty"`
	FusionMode      *string  `json:"fusion_mode,omitempty"` // "decoupled" or "coupled"

	// Process noise (diagonal of Q)
	ProcessNoisePos      *float64 `json:"process_noise_pos,omitempty"`
	ProcessNoiseVel      *float64 `json:"process_noise_vel,omitempty"`
	ProcessNoiseAcc      *float64 `json:"process_noise_acc,omitempty"`
	ProcessNoiseAV       *float64 `json:"process_noise_av,omitempty"`
	ProcessNoiseQuat     *float64 `json:"process_noise_quat,omitempty"`
	ProcessNoiseAccBias  *float64 `json:"process_noise_acc_bias,omitempty"`
	ProcessNoiseGyroBias *float64 `json:"process_noise_gyro_bias,omitempty"`

	// Measurement noise
	AccelNoise             *float64 `json:"accel_noise,omitempty"`
	GyroNoise              *float64 `json:"gyro_noise,omitempty"`
	CameraNoisePos         *float64 `json:"camera_noise_pos,omitempty"`
	CameraNoiseOrientation *float64 `json:"camera_noise_orientation,omitempty"`

	// Divergence detection
	ResetPositionM   *float64 `json:"reset_position_m,omitempty"`
	ResetOrientation *float64 `json:"reset_orientation,omitempty"`

	// Geometry
	GravityG   *float64    `json:"gravity_g,omitempty"`
	TipOffsetM *[3]float64 `json:"tip_offset_m,omitempty"` // body frame, metres

	MinEigenvalue *float64 `json:"min_eigenvalue,omitempty"`

	// Display trail
	TrailPoints *int     `json:"trail_points,omitempty"`
	BlendAlpha  *float64 `json:"blend_alpha,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/tools/playback/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.IMURateHz != nil && !(*c.IMURateHz > 0) {
		return fmt.Errorf("imu_rate_hz must be positive, got %f", *c.IMURateHz)
	}
	if c.SmoothingLength != nil && *c.SmoothingLength < 0 {
		return fmt.Errorf("smoothing_length must be non-negative, got %d", *c.SmoothingLength)
	}
	if c.CameraDelay != nil && *c.CameraDelay < 0 {
		return fmt.Errorf("camera_delay must be non-negative, got %d", *c.CameraDelay)
	}
	if c.FusionMode != nil {
		switch *c.FusionMode {
		case "decoupled", "coupled":
		default:
			return fmt.Errorf("fusion_mode must be \"decoupled\" or \"coupled\", got %q", *c.FusionMode)
		}
	}

	positive := []struct {
		name string
		v    *float64
	}{
		{"process_noise_pos", c.ProcessNoisePos},
		{"process_noise_vel", c.ProcessNoiseVel},
		{"process_noise_acc", c.ProcessNoiseAcc},
		{"process_noise_av", c.ProcessNoiseAV},
		{"process_noise_quat", c.ProcessNoiseQuat},
		{"process_noise_acc_bias", c.ProcessNoiseAccBias},
		{"process_noise_gyro_bias", c.ProcessNoiseGyroBias},
		{"accel_noise", c.AccelNoise},
		{"gyro_noise", c.GyroNoise},
		{"camera_noise_pos", c.CameraNoisePos},
		{"camera_noise_orientation", c.CameraNoiseOrientation},
		{"reset_position_m", c.ResetPositionM},
		{"reset_orientation", c.ResetOrientation},
		{"min_eigenvalue", c.MinEigenvalue},
		{"blend_alpha", c.BlendAlpha},
	}
	for _, p := range positive {
		if p.v == nil {
			continue
		}
		if math.IsNaN(*p.v) || math.IsInf(*p.v, 0) || *p.v <= 0 {
			return fmt.Errorf("%s must be a positive finite number, got %v", p.name, *p.v)
		}
	}

	if c.GravityG != nil && (math.IsNaN(*c.GravityG) || math.IsInf(*c.GravityG, 0) || *c.GravityG < 0) {
		return fmt.Errorf("gravity_g must be non-negative, got %v", *c.GravityG)
	}
	if c.TipOffsetM != nil {
		for i, v := range c.TipOffsetM {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("tip_offset_m[%d] must be finite, got %v", i, v)
			}
		}
	}
	if c.TrailPoints != nil && *c.TrailPoints < 1 {
		return fmt.Errorf("trail_points must be at least 1, got %d", *c.TrailPoints)
	}

	return nil
}

// GetIMURateHz returns the imu_rate_hz value or the default.
func (c *TuningConfig) GetIMURateHz() float64 {
	if c.IMURateHz == nil {
		return 30.0
	}
	return *c.IMURateHz
}

// GetSmoothingLength returns the smoothing_length value or the default.
func (c *TuningConfig) GetSmoothingLength() int {
	if c.SmoothingLength == nil {
		return 5
	}
	return *c.SmoothingLength
}

// GetCameraDelay returns the camera_delay value or the default.
func (c *TuningConfig) GetCameraDelay() int {
	if c.CameraDelay == nil {
		return 0
	}
	return *c.CameraDelay
}

// GetFusionMode returns the fusion_mode value or the default.
func (c *TuningConfig) GetFusionMode() string {
	if c.FusionMode == nil || *c.FusionMode == "" {
		return "decoupled"
	}
	return *c.FusionMode
}

// GetProcessNoisePos returns the process_noise_pos value or the default.
func (c *TuningConfig) GetProcessNoisePos() float64 {
	if c.ProcessNoisePos == nil {
		return 1e-4
	}
	return *c.ProcessNoisePos
}

// GetProcessNoiseVel returns the process_noise_vel value or the default.
func (c *TuningConfig) GetProcessNoiseVel() float64 {
	if c.ProcessNoiseVel == nil {
		return 1e-3
	}
	return *c.ProcessNoiseVel
}

// GetProcessNoiseAcc returns the process_noise_acc value or the default.
func (c *TuningConfig) GetProcessNoiseAcc() float64 {
	if c.ProcessNoiseAcc == nil {
		return 1.0
	}
	return *c.ProcessNoiseAcc
}

// GetProcessNoiseAV returns the process_noise_av value or the default.
func (c *TuningConfig) GetProcessNoiseAV() float64 {
	if c.ProcessNoiseAV == nil {
		return 1.0
	}
	return *c.ProcessNoiseAV
}

// GetProcessNoiseQuat returns the process_noise_quat value or the default.
func (c *TuningConfig) GetProcessNoiseQuat() float64 {
	if c.ProcessNoiseQuat == nil {
		return 1e-5
	}
	return *c.ProcessNoiseQuat
}

// GetProcessNoiseAccBias returns the process_noise_acc_bias value or the default.
func (c *TuningConfig) GetProcessNoiseAccBias() float64 {
	if c.ProcessNoiseAccBias == nil {
		return 1e-6
	}
	return *c.ProcessNoiseAccBias
}

// GetProcessNoiseGyroBias returns the process_noise_gyro_bias value or the default.
func (c *TuningConfig) GetProcessNoiseGyroBias() float64 {
	if c.ProcessNoiseGyroBias == nil {
		return 1e-7
	}
	return *c.ProcessNoiseGyroBias
}

// GetAccelNoise returns the accel_noise value or the default.
func (c *TuningConfig) GetAccelNoise() float64 {
	if c.AccelNoise == nil {
		return 2e-3
	}
	return *c.AccelNoise
}

// GetGyroNoise returns the gyro_noise value or the default.
func (c *TuningConfig) GetGyroNoise() float64 {
	if c.GyroNoise == nil {
		return 5e-4
	}
	return *c.GyroNoise
}

// GetCameraNoisePos returns the camera_noise_pos value or the default.
func (c *TuningConfig) GetCameraNoisePos() float64 {
	if c.CameraNoisePos == nil {
		return 1e-5
	}
	return *c.CameraNoisePos
}

// GetCameraNoiseOrientation returns the camera_noise_orientation value or the default.
// Only the coupled fusion mode reads it.
func (c *TuningConfig) GetCameraNoiseOrientation() float64 {
	if c.CameraNoiseOrientation == nil {
		return 1e-5
	}
	return *c.CameraNoiseOrientation
}

// GetResetPositionM returns the reset_position_m value or the default.
func (c *TuningConfig) GetResetPositionM() float64 {
	if c.ResetPositionM == nil {
		return 0.5
	}
	return *c.ResetPositionM
}

// GetResetOrientation returns the reset_orientation value or the default.
func (c *TuningConfig) GetResetOrientation() float64 {
	if c.ResetOrientation == nil {
		return 1.0
	}
	return *c.ResetOrientation
}

// GetGravityG returns the gravity_g value or the default.
func (c *TuningConfig) GetGravityG() float64 {
	if c.GravityG == nil {
		return 1.0
	}
	return *c.GravityG
}

// GetTipOffsetM returns the tip_offset_m value or the default (zero offset).
func (c *TuningConfig) GetTipOffsetM() [3]float64 {
	if c.TipOffsetM == nil {
		return [3]float64{}
	}
	return *c.TipOffsetM
}

// GetMinEigenvalue returns the min_eigenvalue value or the default.
func (c *TuningConfig) GetMinEigenvalue() float64 {
	if c.MinEigenvalue == nil {
		return 1e-12
	}
	return *c.MinEigenvalue
}

// GetTrailPoints returns the trail_points value or the default.
func (c *TuningConfig) GetTrailPoints() int {
	if c.TrailPoints == nil {
		return 12000
	}
	return *c.TrailPoints
}

// GetBlendAlpha returns the blend_alpha value or the default.
func (c *TuningConfig) GetBlendAlpha() float64 {
	if c.BlendAlpha == nil {
		return 1.5
	}
	return *c.BlendAlpha
}
