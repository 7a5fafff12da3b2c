package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestPredictKinematics(t *testing.T) {
	t.Parallel()

	fs := NewFilterState()
	setVec3(fs.State, iPos, r3.Vec{X: 1})
	setVec3(fs.State, iVel, r3.Vec{X: 2, Y: -1})
	setVec3(fs.State, iAcc, r3.Vec{Z: 4})

	dt := 0.1
	got := Predict(fs, dt, DefaultConfig().ProcessNoise.Matrix())

	p := got.Position()
	assert.InDelta(t, 1.2, p.X, 1e-12)
	assert.InDelta(t, -0.1, p.Y, 1e-12)
	assert.InDelta(t, 0.02, p.Z, 1e-12)
	v := got.Velocity()
	assert.InDelta(t, 2, v.X, 1e-12)
	assert.InDelta(t, 0.4, v.Z, 1e-12)
	assert.Equal(t, fs.Acceleration(), got.Acceleration())

	// Input untouched.
	assert.Equal(t, r3.Vec{X: 1}, fs.Position())
}

func TestPredictIntegratesOrientation(t *testing.T) {
	t.Parallel()

	fs := NewFilterState()
	setVec3(fs.State, iAV, r3.Vec{Z: 1})
	q := DefaultConfig().ProcessNoise.Matrix()

	dt := 0.001
	for i := 0; i < 1000; i++ {
		fs = Predict(fs, dt, q)
		require.InDelta(t, 1.0, quat.Abs(fs.Orientation()), 1e-9)
	}

	// One second at 1 rad/s about z.
	want := QuaternionFromRotation(rotationZ(1))
	assertQuatNear(t, want, fs.Orientation(), 1e-3)
}

func TestPredictCovarianceGrowsAndStaysSymmetric(t *testing.T) {
	t.Parallel()

	fs := NewFilterState()
	q := DefaultConfig().ProcessNoise.Matrix()
	next := Predict(fs, 1.0/30, q)

	for i := 0; i < StateDim; i++ {
		assert.GreaterOrEqual(t, next.Cov.At(i, i), fs.Cov.At(i, i), "diag %d", i)
		for j := 0; j < StateDim; j++ {
			assert.Equal(t, next.Cov.At(i, j), next.Cov.At(j, i))
		}
	}
	assert.Greater(t, next.Cov.At(iPos, iVel), 0.0, "position/velocity correlation")
}

func TestTransitionJacobianMatchesFiniteDifference(t *testing.T) {
	t.Parallel()

	x := mat.NewVecDense(StateDim, nil)
	setVec3(x, iVel, r3.Vec{X: 0.3, Y: -0.2, Z: 0.1})
	setVec3(x, iAcc, r3.Vec{X: 1, Y: 2, Z: -1})
	setVec3(x, iAV, r3.Vec{X: 0.4, Y: -0.7, Z: 0.2})
	setQuat(x, quat.Number{Real: 0.9, Imag: 0.1, Jmag: -0.3, Kmag: 0.2})
	normalizeQuaternion(x)

	dt := 0.02
	// Unnormalised process model; the Jacobian linearises this map.
	model := func(x mat.Vector) *mat.VecDense {
		out := mat.VecDenseCopyOf(x)
		p, v, a := vec3At(x, iPos), vec3At(x, iVel), vec3At(x, iAcc)
		w := vec3At(x, iAV)
		qt := quatAt(x)
		setVec3(out, iPos, r3.Add(p, r3.Add(r3.Scale(dt, v), r3.Scale(0.5*dt*dt, a))))
		setVec3(out, iVel, r3.Add(v, r3.Scale(dt, a)))
		setQuat(out, quat.Add(qt, quat.Scale(0.5*dt, quat.Mul(qt, quat.Number{Imag: w.X, Jmag: w.Y, Kmag: w.Z}))))
		return out
	}

	f := transitionJacobian(x, dt)
	const eps = 1e-6
	for j := 0; j < StateDim; j++ {
		plus := mat.VecDenseCopyOf(x)
		minus := mat.VecDenseCopyOf(x)
		plus.SetVec(j, x.AtVec(j)+eps)
		minus.SetVec(j, x.AtVec(j)-eps)
		fp, fm := model(plus), model(minus)
		for i := 0; i < StateDim; i++ {
			num := (fp.AtVec(i) - fm.AtVec(i)) / (2 * eps)
			assert.InDelta(t, num, f.At(i, j), 1e-6, "F[%d][%d]", i, j)
		}
	}
}

func TestProcessNoiseMatrix(t *testing.T) {
	t.Parallel()

	n := ProcessNoise{Pos: 1, Vel: 2, Acc: 3, AV: 4, Quat: 5, AccBias: 6, GyroBias: 7}
	m := n.Matrix()
	assert.Equal(t, 1.0, m.At(iPos+2, iPos+2))
	assert.Equal(t, 4.0, m.At(iAV, iAV))
	assert.Equal(t, 5.0, m.At(iQuat+3, iQuat+3))
	assert.Equal(t, 7.0, m.At(StateDim-1, StateDim-1))
	assert.Zero(t, m.At(0, 1))
}
