package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetIMURateHz() != 30.0 {
		t.Errorf("GetIMURateHz() = %f, want 30", cfg.GetIMURateHz())
	}
	if cfg.GetSmoothingLength() != 5 {
		t.Errorf("GetSmoothingLength() = %d, want 5", cfg.GetSmoothingLength())
	}
	if cfg.GetCameraDelay() != 0 {
		t.Errorf("GetCameraDelay() = %d, want 0", cfg.GetCameraDelay())
	}
	if cfg.GetFusionMode() != "decoupled" {
		t.Errorf("GetFusionMode() = %q, want decoupled", cfg.GetFusionMode())
	}
	if cfg.GetResetPositionM() != 0.5 {
		t.Errorf("GetResetPositionM() = %f, want 0.5", cfg.GetResetPositionM())
	}
	if cfg.GetResetOrientation() != 1.0 {
		t.Errorf("GetResetOrientation() = %f, want 1.0", cfg.GetResetOrientation())
	}
	if cfg.GetTipOffsetM() != [3]float64{} {
		t.Errorf("GetTipOffsetM() = %v, want zero", cfg.GetTipOffsetM())
	}
	if cfg.GetTrailPoints() != 12000 {
		t.Errorf("GetTrailPoints() = %d, want 12000", cfg.GetTrailPoints())
	}
	if cfg.GetBlendAlpha() != 1.5 {
		t.Errorf("GetBlendAlpha() = %f, want 1.5", cfg.GetBlendAlpha())
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "imu_rate_hz": 100,
  "smoothing_length": 8,
  "camera_delay": 2,
  "fusion_mode": "coupled",
  "accel_noise": 0.004,
  "tip_offset_m": [0, 0, 0.12]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetIMURateHz() != 100 {
		t.Errorf("GetIMURateHz() = %f, want 100", cfg.GetIMURateHz())
	}
	if cfg.GetSmoothingLength() != 8 {
		t.Errorf("GetSmoothingLength() = %d, want 8", cfg.GetSmoothingLength())
	}
	if cfg.GetCameraDelay() != 2 {
		t.Errorf("GetCameraDelay() = %d, want 2", cfg.GetCameraDelay())
	}
	if cfg.GetFusionMode() != "coupled" {
		t.Errorf("GetFusionMode() = %q, want coupled", cfg.GetFusionMode())
	}
	if cfg.GetAccelNoise() != 0.004 {
		t.Errorf("GetAccelNoise() = %f, want 0.004", cfg.GetAccelNoise())
	}
	if got := cfg.GetTipOffsetM(); got != [3]float64{0, 0, 0.12} {
		t.Errorf("GetTipOffsetM() = %v, want [0 0 0.12]", got)
	}
	// Omitted fields keep their defaults.
	if cfg.GetGyroNoise() != 5e-4 {
		t.Errorf("GetGyroNoise() = %g, want 5e-4", cfg.GetGyroNoise())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("config.yaml")
	if err == nil || !strings.Contains(err.Error(), ".json") {
		t.Fatalf("expected extension error, got %v", err)
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.json")
	data := make([]byte, 1024*1024+1)
	for i := range data {
		data[i] = ' '
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadTuningConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TuningConfig
		wantErr bool
	}{
		{"empty", TuningConfig{}, false},
		{"valid rate", TuningConfig{IMURateHz: ptrFloat64(100)}, false},
		{"zero rate", TuningConfig{IMURateHz: ptrFloat64(0)}, true},
		{"negative smoothing", TuningConfig{SmoothingLength: ptrInt(-1)}, true},
		{"negative delay", TuningConfig{CameraDelay: ptrInt(-2)}, true},
		{"zero smoothing", TuningConfig{SmoothingLength: ptrInt(0)}, false},
		{"coupled mode", TuningConfig{FusionMode: ptrString("coupled")}, false},
		{"unknown mode", TuningConfig{FusionMode: ptrString("loose")}, true},
		{"zero accel noise", TuningConfig{AccelNoise: ptrFloat64(0)}, true},
		{"negative camera noise", TuningConfig{CameraNoisePos: ptrFloat64(-1e-5)}, true},
		{"zero gravity", TuningConfig{GravityG: ptrFloat64(0)}, false},
		{"negative gravity", TuningConfig{GravityG: ptrFloat64(-1)}, true},
		{"zero trail", TuningConfig{TrailPoints: ptrInt(0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyTuningConfig()

	// The defaults file and the built-in fallbacks must agree.
	if cfg.GetIMURateHz() != empty.GetIMURateHz() {
		t.Errorf("imu_rate_hz: file %f, built-in %f", cfg.GetIMURateHz(), empty.GetIMURateHz())
	}
	if cfg.GetSmoothingLength() != empty.GetSmoothingLength() {
		t.Errorf("smoothing_length: file %d, built-in %d", cfg.GetSmoothingLength(), empty.GetSmoothingLength())
	}
	if cfg.GetProcessNoiseAcc() != empty.GetProcessNoiseAcc() {
		t.Errorf("process_noise_acc: file %g, built-in %g", cfg.GetProcessNoiseAcc(), empty.GetProcessNoiseAcc())
	}
	if cfg.GetProcessNoiseGyroBias() != empty.GetProcessNoiseGyroBias() {
		t.Errorf("process_noise_gyro_bias: file %g, built-in %g", cfg.GetProcessNoiseGyroBias(), empty.GetProcessNoiseGyroBias())
	}
	if cfg.GetCameraNoisePos() != empty.GetCameraNoisePos() {
		t.Errorf("camera_noise_pos: file %g, built-in %g", cfg.GetCameraNoisePos(), empty.GetCameraNoisePos())
	}
	if cfg.GetMinEigenvalue() != empty.GetMinEigenvalue() {
		t.Errorf("min_eigenvalue: file %g, built-in %g", cfg.GetMinEigenvalue(), empty.GetMinEigenvalue())
	}
}
