package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var identityRotation = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

func rotationZ(theta float64) [9]float64 {
	c, s := math.Cos(theta), math.Sin(theta)
	return [9]float64{c, -s, 0, s, c, 0, 0, 0, 1}
}

func rotationX(theta float64) [9]float64 {
	c, s := math.Cos(theta), math.Sin(theta)
	return [9]float64{1, 0, 0, 0, c, -s, 0, s, c}
}

func assertQuatNear(t *testing.T, want, got quat.Number, tol float64) {
	t.Helper()
	assert.InDelta(t, want.Real, got.Real, tol, "w")
	assert.InDelta(t, want.Imag, got.Imag, tol, "x")
	assert.InDelta(t, want.Jmag, got.Jmag, tol, "y")
	assert.InDelta(t, want.Kmag, got.Kmag, tol, "z")
}

func TestNearestQuaternion(t *testing.T) {
	t.Parallel()

	ref := quat.Number{Real: 1}
	q := quat.Number{Real: -0.9, Imag: 0.1}
	q = quat.Scale(1/quat.Abs(q), q)

	got, dist := NearestQuaternion(ref, q)
	assert.Greater(t, got.Real, 0.0, "nearest should be on the reference hemisphere")
	assert.InDelta(t, quat.Abs(quat.Sub(ref, got)), dist, 1e-15)

	same, d0 := NearestQuaternion(ref, ref)
	assert.Equal(t, ref, same)
	assert.Zero(t, d0)
}

func TestQuaternionFromRotation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    [9]float64
	}{
		{"identity", identityRotation},
		{"yaw 30deg", rotationZ(math.Pi / 6)},
		{"yaw 179deg", rotationZ(179 * math.Pi / 180)},
		{"roll 90deg", rotationX(math.Pi / 2)},
		{"roll 180deg", rotationX(math.Pi)},
		{"permutation", [9]float64{0, 0, 1, 1, 0, 0, 0, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := QuaternionFromRotation(tt.r)
			assert.InDelta(t, 1.0, quat.Abs(q), 1e-12)
			back := RotationMatrix(q)
			for i := range back {
				assert.InDelta(t, tt.r[i], back[i], 1e-9, "element %d", i)
			}
		})
	}
}

func TestRotateMatchesMatrix(t *testing.T) {
	t.Parallel()

	r := rotationX(math.Pi / 2)
	q := QuaternionFromRotation(r)
	v := Rotate(q, r3.Vec{Z: 1})
	assert.InDelta(t, 0, v.X, 1e-12)
	assert.InDelta(t, -1, v.Y, 1e-12)
	assert.InDelta(t, 0, v.Z, 1e-12)
}

func TestContinuityAlign(t *testing.T) {
	t.Parallel()

	var c Continuity
	_, ok := c.Last()
	require.False(t, ok)

	q := quat.Number{Real: 0.6, Imag: 0.8}
	assert.Equal(t, q, c.Align(q), "first quaternion is accepted as is")

	flipped := c.Align(quat.Scale(-1, q))
	assert.Equal(t, q, flipped)

	next := quat.Number{Real: 0.8, Imag: 0.6}
	assert.Equal(t, next, c.Align(next))
	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, next, last)
}

func TestContinuityReset(t *testing.T) {
	t.Parallel()

	var c Continuity
	q := quat.Number{Real: 0.6, Imag: 0.8}
	c.Align(q)

	neg := quat.Scale(-1, q)
	c.Reset(neg)
	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, neg, last)
	assert.Equal(t, neg, c.Align(q), "alignment follows the new reference")
}
