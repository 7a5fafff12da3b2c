package fusion

import (
	"testing"

	"github.com/banshee-data/dpoint/internal/config"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDefaultConfigMatchesDefaultsFile(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromTuning(config.MustLoadDefaultConfig()))
}

func TestConfigFromTuning(t *testing.T) {
	t.Parallel()

	rate := 100.0
	smoothing := 9
	mode := "coupled"
	tip := [3]float64{0, 0, 0.14}
	cfg := ConfigFromTuning(&config.TuningConfig{
		IMURateHz:       &rate,
		SmoothingLength: &smoothing,
		FusionMode:      &mode,
		TipOffsetM:      &tip,
	})

	assert.InDelta(t, 0.01, cfg.Dt, 1e-15)
	assert.Equal(t, 9, cfg.SmoothingLength)
	assert.Equal(t, FusionCoupled, cfg.Mode)
	assert.Equal(t, r3.Vec{Z: 0.14}, cfg.TipOffset)
	assert.Equal(t, 10, cfg.HistoryCapacity())
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfigValues(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.InDelta(t, 1.0/30, cfg.Dt, 1e-15)
	assert.Equal(t, 5, cfg.SmoothingLength)
	assert.Equal(t, 0, cfg.CameraDelay)
	assert.Equal(t, FusionDecoupled, cfg.Mode)
	assert.Equal(t, 0.5, cfg.ResetPosition)
	assert.Equal(t, 1.0, cfg.ResetOrientation)
	assert.Equal(t, 1.0, cfg.ProcessNoise.Acc)
	assert.Equal(t, 1e-7, cfg.ProcessNoise.GyroBias)
}
