package fusion

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ProcessNoise holds the per-block variances of the additive process noise.
type ProcessNoise struct {
	Pos      float64
	Vel      float64
	Acc      float64
	AV       float64
	Quat     float64
	AccBias  float64
	GyroBias float64
}

// Matrix returns the diagonal StateDim x StateDim noise matrix Q.
func (n ProcessNoise) Matrix() *mat.Dense {
	d := make([]float64, StateDim)
	fillBlock(d, iPos, 3, n.Pos)
	fillBlock(d, iVel, 3, n.Vel)
	fillBlock(d, iAcc, 3, n.Acc)
	fillBlock(d, iAV, 3, n.AV)
	fillBlock(d, iQuat, 4, n.Quat)
	fillBlock(d, iAccBias, 3, n.AccBias)
	fillBlock(d, iGyroBias, 3, n.GyroBias)
	return diagonal(d)
}

// Predict propagates fs over dt with a constant-acceleration,
// constant-angular-velocity model. Acceleration, angular velocity and both
// biases are held constant; q is added to the propagated covariance.
func Predict(fs FilterState, dt float64, q mat.Matrix) FilterState {
	x := fs.State
	p, v, a := vec3At(x, iPos), vec3At(x, iVel), vec3At(x, iAcc)
	w := vec3At(x, iAV)
	qt := quatAt(x)

	next := mat.VecDenseCopyOf(x)
	setVec3(next, iPos, r3.Add(p, r3.Add(r3.Scale(dt, v), r3.Scale(0.5*dt*dt, a))))
	setVec3(next, iVel, r3.Add(v, r3.Scale(dt, a)))
	qdot := quat.Mul(qt, quat.Number{Imag: w.X, Jmag: w.Y, Kmag: w.Z})
	setQuat(next, quat.Add(qt, quat.Scale(0.5*dt, qdot)))
	normalizeQuaternion(next)

	f := transitionJacobian(x, dt)
	var cov mat.Dense
	cov.Product(f, fs.Cov, f.T())
	cov.Add(&cov, q)
	symmetrize(&cov)

	return FilterState{State: next, Cov: &cov}
}

// transitionJacobian linearises the process model about x.
func transitionJacobian(x mat.Vector, dt float64) *mat.Dense {
	f := identity(StateDim)
	for i := 0; i < 3; i++ {
		f.Set(iPos+i, iVel+i, dt)
		f.Set(iPos+i, iAcc+i, 0.5*dt*dt)
		f.Set(iVel+i, iAcc+i, dt)
	}

	w := vec3At(x, iAV)
	q := quatAt(x)
	h := 0.5 * dt

	// d(q ⊗ ω)/dq
	dq := [4][4]float64{
		{0, -w.X, -w.Y, -w.Z},
		{w.X, 0, w.Z, -w.Y},
		{w.Y, -w.Z, 0, w.X},
		{w.Z, w.Y, -w.X, 0},
	}
	// d(q ⊗ ω)/dω
	dw := [4][3]float64{
		{-q.Imag, -q.Jmag, -q.Kmag},
		{q.Real, -q.Kmag, q.Jmag},
		{q.Kmag, q.Real, -q.Imag},
		{-q.Jmag, q.Imag, q.Real},
	}
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			f.Set(iQuat+r, iQuat+c, f.At(iQuat+r, iQuat+c)+h*dq[r][c])
		}
		for c := 0; c < 3; c++ {
			f.Set(iQuat+r, iAV+c, h*dw[r][c])
		}
	}
	return f
}
