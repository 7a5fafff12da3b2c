package fusion

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// StandardGravity converts accelerations between m/s² and g.
const StandardGravity = 9.80665

// IMUModel is the inertial measurement model: the accelerometer sees the
// state acceleration plus gravity, rotated into the body frame, plus bias;
// the gyroscope sees angular velocity plus bias.
type IMUModel struct {
	R             *mat.Dense // 6x6 measurement noise
	Gravity       float64    // gravity magnitude in g seen at rest
	MinEigenvalue float64
}

// NewIMUModel builds an IMUModel with diagonal noise.
func NewIMUModel(accelNoise, gyroNoise, gravity, minEig float64) IMUModel {
	return IMUModel{
		R:             diagonal([]float64{accelNoise, accelNoise, accelNoise, gyroNoise, gyroNoise, gyroNoise}),
		Gravity:       gravity,
		MinEigenvalue: minEig,
	}
}

// FuseIMU corrects a predicted state with one accelerometer (g) and
// gyroscope (rad/s) reading using unit gravity.
func FuseIMU(fs FilterState, accel, gyro r3.Vec, r *mat.Dense) FilterState {
	return IMUModel{R: r, Gravity: 1, MinEigenvalue: DefaultMinEigenvalue}.Fuse(fs, accel, gyro)
}

// Fuse corrects fs with one inertial reading and renormalises the quaternion.
func (m IMUModel) Fuse(fs FilterState, accel, gyro r3.Vec) FilterState {
	h, jac := m.predict(fs.State)
	z := mat.NewVecDense(6, []float64{accel.X, accel.Y, accel.Z, gyro.X, gyro.Y, gyro.Z})
	out := Correct(fs, h, jac, z, m.R, m.MinEigenvalue)
	normalizeQuaternion(out.State)
	return out
}

// predict returns the expected reading and its Jacobian.
func (m IMUModel) predict(x mat.Vector) (*mat.VecDense, *mat.Dense) {
	acc := vec3At(x, iAcc)
	av := vec3At(x, iAV)
	ba := vec3At(x, iAccBias)
	bg := vec3At(x, iGyroBias)
	q := quatAt(x)
	w := q.Real
	u := r3.Vec{X: q.Imag, Y: q.Jmag, Z: q.Kmag}

	// Specific force in the world frame, in g.
	f := r3.Add(r3.Scale(1/StandardGravity, acc), r3.Vec{Z: m.Gravity})

	// M(q)f = (w² - u·u)f + 2(u·f)u - 2w(u×f), the inverse rotation for unit q.
	s := w*w - r3.Dot(u, u)
	uf := r3.Dot(u, f)
	body := r3.Add(r3.Scale(s, f), r3.Sub(r3.Scale(2*uf, u), r3.Scale(2*w, r3.Cross(u, f))))

	h := mat.NewVecDense(6, nil)
	setVec3(h, 0, r3.Add(body, ba))
	setVec3(h, 3, r3.Add(av, bg))

	jac := mat.NewDense(6, StateDim, nil)

	// d/d(acc) = M(q)/g0
	ux := skew(u)
	uv := [3]float64{u.X, u.Y, u.Z}
	fv := [3]float64{f.X, f.Y, f.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			mij := 2*uv[i]*uv[j] - 2*w*ux[i][j]
			if i == j {
				mij += s
			}
			jac.Set(i, iAcc+j, mij/StandardGravity)
		}
	}

	// d/dw = 2(w f - u×f)
	dw := r3.Scale(2, r3.Sub(r3.Scale(w, f), r3.Cross(u, f)))
	jac.Set(0, iQuat, dw.X)
	jac.Set(1, iQuat, dw.Y)
	jac.Set(2, iQuat, dw.Z)

	// d/du = 2((u·f)I + u fᵀ - f uᵀ + w[f]×)
	fx := skew(f)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := uv[i]*fv[j] - fv[i]*uv[j] + w*fx[i][j]
			if i == j {
				v += uf
			}
			jac.Set(i, iQuat+1+j, 2*v)
		}
		jac.Set(i, iAccBias+i, 1)
		jac.Set(3+i, iAV+i, 1)
		jac.Set(3+i, iGyroBias+i, 1)
	}

	return h, jac
}

// skew returns the cross-product matrix [v]× with [v]×a = v×a.
func skew(v r3.Vec) [3][3]float64 {
	return [3][3]float64{
		{0, -v.Z, v.Y},
		{v.Z, 0, -v.X},
		{-v.Y, v.X, 0},
	}
}
