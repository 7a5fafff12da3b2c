package fusion

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// StateDim is the length of the filter state vector.
const StateDim = 22

// State vector layout.
const (
	iPos      = 0  // position (m)
	iVel      = 3  // velocity (m/s)
	iAcc      = 6  // linear acceleration (m/s², world frame)
	iAV       = 9  // angular velocity (rad/s, body frame)
	iQuat     = 12 // orientation quaternion w, x, y, z
	iAccBias  = 16 // accelerometer bias (g)
	iGyroBias = 19 // gyroscope bias (rad/s)
)

// Initial covariance diagonal per block.
const (
	initialVariance         = 0.01
	initialQuatVariance     = 1.0
	initialAccBiasVariance  = 1e-2
	initialGyroBiasVariance = 1e-4
)

// FilterState is a state vector together with its covariance.
type FilterState struct {
	State *mat.VecDense // StateDim
	Cov   *mat.Dense    // StateDim x StateDim
}

// NewFilterState returns the construction-time state: zero kinematics and
// biases, identity orientation, high orientation uncertainty.
func NewFilterState() FilterState {
	return stateFromPose(r3.Vec{}, quat.Number{Real: 1})
}

func stateFromPose(pos r3.Vec, q quat.Number) FilterState {
	x := mat.NewVecDense(StateDim, nil)
	setVec3(x, iPos, pos)
	setQuat(x, q)
	normalizeQuaternion(x)
	return FilterState{State: x, Cov: initialCovariance()}
}

func initialCovariance() *mat.Dense {
	d := make([]float64, StateDim)
	for i := range d {
		d[i] = initialVariance
	}
	fillBlock(d, iQuat, 4, initialQuatVariance)
	fillBlock(d, iAccBias, 3, initialAccBiasVariance)
	fillBlock(d, iGyroBias, 3, initialGyroBiasVariance)
	return diagonal(d)
}

// Clone returns a deep copy.
func (fs FilterState) Clone() FilterState {
	return FilterState{
		State: mat.VecDenseCopyOf(fs.State),
		Cov:   mat.DenseCopyOf(fs.Cov),
	}
}

// Position returns the position block.
func (fs FilterState) Position() r3.Vec { return vec3At(fs.State, iPos) }

// Velocity returns the velocity block.
func (fs FilterState) Velocity() r3.Vec { return vec3At(fs.State, iVel) }

// Acceleration returns the world-frame acceleration block.
func (fs FilterState) Acceleration() r3.Vec { return vec3At(fs.State, iAcc) }

// AngularVelocity returns the body-frame angular velocity block.
func (fs FilterState) AngularVelocity() r3.Vec { return vec3At(fs.State, iAV) }

// Orientation returns the orientation quaternion.
func (fs FilterState) Orientation() quat.Number { return quatAt(fs.State) }

// AccelBias returns the accelerometer bias block.
func (fs FilterState) AccelBias() r3.Vec { return vec3At(fs.State, iAccBias) }

// GyroBias returns the gyroscope bias block.
func (fs FilterState) GyroBias() r3.Vec { return vec3At(fs.State, iGyroBias) }

// isFinite reports whether every state element and covariance diagonal
// entry is finite.
func (fs FilterState) isFinite() bool {
	for i := 0; i < StateDim; i++ {
		if !finite(fs.State.AtVec(i)) || !finite(fs.Cov.At(i, i)) {
			return false
		}
	}
	return true
}

// withFlippedQuaternion negates the quaternion block and the covariance
// terms coupling it to the rest of the state, so q and -q describe the
// same distribution.
func withFlippedQuaternion(fs FilterState) FilterState {
	out := fs.Clone()
	for i := iQuat; i < iQuat+4; i++ {
		out.State.SetVec(i, -out.State.AtVec(i))
	}
	for i := 0; i < StateDim; i++ {
		for j := 0; j < StateDim; j++ {
			if inQuatBlock(i) != inQuatBlock(j) {
				out.Cov.Set(i, j, -out.Cov.At(i, j))
			}
		}
	}
	return out
}

func inQuatBlock(i int) bool { return i >= iQuat && i < iQuat+4 }

func normalizeQuaternion(x *mat.VecDense) {
	q := quatAt(x)
	n := quat.Abs(q)
	if n == 0 || !finite(n) {
		setQuat(x, quat.Number{Real: 1})
		return
	}
	setQuat(x, quat.Scale(1/n, q))
}

func vec3At(x mat.Vector, off int) r3.Vec {
	return r3.Vec{X: x.AtVec(off), Y: x.AtVec(off + 1), Z: x.AtVec(off + 2)}
}

func setVec3(x *mat.VecDense, off int, v r3.Vec) {
	x.SetVec(off, v.X)
	x.SetVec(off+1, v.Y)
	x.SetVec(off+2, v.Z)
}

func quatAt(x mat.Vector) quat.Number {
	return quat.Number{
		Real: x.AtVec(iQuat),
		Imag: x.AtVec(iQuat + 1),
		Jmag: x.AtVec(iQuat + 2),
		Kmag: x.AtVec(iQuat + 3),
	}
}

func setQuat(x *mat.VecDense, q quat.Number) {
	x.SetVec(iQuat, q.Real)
	x.SetVec(iQuat+1, q.Imag)
	x.SetVec(iQuat+2, q.Jmag)
	x.SetVec(iQuat+3, q.Kmag)
}

func fillBlock(d []float64, off, n int, v float64) {
	for i := off; i < off+n; i++ {
		d[i] = v
	}
}

func diagonal(d []float64) *mat.Dense {
	m := mat.NewDense(len(d), len(d), nil)
	for i, v := range d {
		m.Set(i, i, v)
	}
	return m
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// symmetrize replaces m with (m + mᵀ)/2 in place.
func symmetrize(m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteVec(v r3.Vec) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}
