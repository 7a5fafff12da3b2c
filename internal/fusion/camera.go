package fusion

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// FusionMode selects how camera poses enter the filter.
type FusionMode string

const (
	FusionDecoupled FusionMode = "decoupled" // position only
	FusionCoupled   FusionMode = "coupled"   // position and orientation
)

// ParseFusionMode validates a mode name.
func ParseFusionMode(s string) (FusionMode, error) {
	switch m := FusionMode(s); m {
	case FusionDecoupled, FusionCoupled:
		return m, nil
	case "":
		return FusionDecoupled, nil
	default:
		return "", fmt.Errorf("%w: unknown fusion mode %q", ErrInvalidConfig, s)
	}
}

// CameraModel corrects a state with a camera pose. orientation has already
// been sign-aligned with the state quaternion.
type CameraModel interface {
	Mode() FusionMode
	Correct(fs FilterState, position r3.Vec, orientation quat.Number) FilterState
}

// NewCameraModel returns the camera correction for mode.
func NewCameraModel(mode FusionMode, posNoise, orientationNoise, minEig float64) (CameraModel, error) {
	switch mode {
	case FusionDecoupled:
		return decoupledCamera{
			jac:    selector(iPos, 3),
			r:      diagonal([]float64{posNoise, posNoise, posNoise}),
			minEig: minEig,
		}, nil
	case FusionCoupled:
		jac := mat.NewDense(7, StateDim, nil)
		for i := 0; i < 3; i++ {
			jac.Set(i, iPos+i, 1)
		}
		for i := 0; i < 4; i++ {
			jac.Set(3+i, iQuat+i, 1)
		}
		return coupledCamera{
			jac: jac,
			r: diagonal([]float64{
				posNoise, posNoise, posNoise,
				orientationNoise, orientationNoise, orientationNoise, orientationNoise,
			}),
			minEig: minEig,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown fusion mode %q", ErrInvalidConfig, mode)
	}
}

type decoupledCamera struct {
	jac    *mat.Dense
	r      *mat.Dense
	minEig float64
}

func (decoupledCamera) Mode() FusionMode { return FusionDecoupled }

func (c decoupledCamera) Correct(fs FilterState, position r3.Vec, _ quat.Number) FilterState {
	h := mat.NewVecDense(3, nil)
	setVec3(h, 0, fs.Position())
	z := mat.NewVecDense(3, []float64{position.X, position.Y, position.Z})
	out := Correct(fs, h, c.jac, z, c.r, c.minEig)
	normalizeQuaternion(out.State)
	return out
}

type coupledCamera struct {
	jac    *mat.Dense
	r      *mat.Dense
	minEig float64
}

func (coupledCamera) Mode() FusionMode { return FusionCoupled }

func (c coupledCamera) Correct(fs FilterState, position r3.Vec, orientation quat.Number) FilterState {
	p, q := fs.Position(), fs.Orientation()
	h := mat.NewVecDense(7, []float64{p.X, p.Y, p.Z, q.Real, q.Imag, q.Jmag, q.Kmag})
	z := mat.NewVecDense(7, []float64{
		position.X, position.Y, position.Z,
		orientation.Real, orientation.Imag, orientation.Jmag, orientation.Kmag,
	})
	out := Correct(fs, h, c.jac, z, c.r, c.minEig)
	normalizeQuaternion(out.State)
	return out
}

// selector returns an n x StateDim matrix picking n consecutive states.
func selector(off, n int) *mat.Dense {
	m := mat.NewDense(n, StateDim, nil)
	for i := 0; i < n; i++ {
		m.Set(i, off+i, 1)
	}
	return m
}
