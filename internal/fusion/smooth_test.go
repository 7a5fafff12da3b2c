package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// predictOnly builds n history steps with no corrections, so every
// corrected estimate equals its prediction.
func predictOnly(n int, dt float64) []SmoothingItem {
	q := DefaultConfig().ProcessNoise.Matrix()
	fs := NewFilterState()
	setVec3(fs.State, iVel, r3.Vec{X: 0.2})
	items := make([]SmoothingItem, 0, n)
	for i := 0; i < n; i++ {
		pred := Predict(fs, dt, q)
		items = append(items, SmoothingItem{Corrected: pred, Predicted: pred})
		fs = pred
	}
	return items
}

func TestSmoothEmptyAndSingle(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Smooth(nil, 0.1, DefaultMinEigenvalue))

	items := predictOnly(1, 0.1)
	out := Smooth(items, 0.1, DefaultMinEigenvalue)
	require.Len(t, out, 1)
	assert.Equal(t, items[0].Corrected.State.RawVector().Data, out[0].State.RawVector().Data)
}

func TestSmoothWithoutCorrectionsIsIdentity(t *testing.T) {
	t.Parallel()

	dt := 1.0 / 30
	items := predictOnly(6, dt)
	out := Smooth(items, dt, DefaultMinEigenvalue)
	require.Len(t, out, 6)
	for k := range out {
		for i := 0; i < StateDim; i++ {
			assert.InDelta(t, items[k].Corrected.State.AtVec(i), out[k].State.AtVec(i), 1e-9, "step %d state %d", k, i)
		}
	}
}

func TestSmoothPropagatesLateCorrectionBackwards(t *testing.T) {
	t.Parallel()

	dt := 1.0 / 30
	items := predictOnly(5, dt)
	cam, err := NewCameraModel(FusionDecoupled, 1e-5, 1e-5, DefaultMinEigenvalue)
	require.NoError(t, err)

	last := len(items) - 1
	target := r3.Add(items[last].Corrected.Position(), r3.Vec{Y: 0.05})
	items[last].Corrected = cam.Correct(items[last].Corrected, target, items[last].Corrected.Orientation())

	out := Smooth(items, dt, DefaultMinEigenvalue)
	require.Len(t, out, 5)
	assert.InDelta(t, target.Y, out[last].Position().Y, 1e-3)

	// The step before the fused one is pulled toward it; nothing overshoots.
	assert.Greater(t, out[last-1].Position().Y, 0.0)
	for k := range out {
		assert.LessOrEqual(t, out[k].Position().Y, target.Y+1e-9, "step %d", k)
	}
	// Covariance shrinks.
	for k := range out {
		assert.LessOrEqual(t, out[k].Cov.At(iPos+1, iPos+1), items[k].Corrected.Cov.At(iPos+1, iPos+1)+1e-12)
	}
}
