package fusion

import (
	"gonum.org/v1/gonum/mat"
)

// Internal numerical stability constants, not user-tunable.
const (
	// DefaultMinEigenvalue floors the spectrum of matrices before inversion.
	DefaultMinEigenvalue = 1e-12
)

// Correct applies an EKF measurement update to fs. h is the predicted
// measurement, jac its Jacobian with respect to the state, z the observed
// measurement and r the measurement noise. Eigenvalues of the innovation
// covariance are floored at minEig before inversion.
func Correct(fs FilterState, h mat.Vector, jac mat.Matrix, z mat.Vector, r mat.Matrix, minEig float64) FilterState {
	var y mat.VecDense
	y.SubVec(z, h)

	var pht mat.Dense
	pht.Mul(fs.Cov, jac.T())

	var s mat.Dense
	s.Mul(jac, &pht)
	s.Add(&s, r)

	var k mat.Dense
	k.Mul(&pht, flooredInverse(&s, minEig))

	var dx mat.VecDense
	dx.MulVec(&k, &y)
	x := mat.NewVecDense(StateDim, nil)
	x.AddVec(fs.State, &dx)

	var kh mat.Dense
	kh.Mul(&k, jac)
	ikh := identity(StateDim)
	ikh.Sub(ikh, &kh)

	var cov mat.Dense
	cov.Mul(ikh, fs.Cov)
	symmetrize(&cov)

	return FilterState{State: x, Cov: &cov}
}

// flooredInverse inverts the symmetric part of a through its eigen
// decomposition, raising every eigenvalue to at least minEig.
func flooredInverse(a mat.Matrix, minEig float64) *mat.Dense {
	if minEig <= 0 {
		minEig = DefaultMinEigenvalue
	}
	n, _ := a.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}

	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		// Fall back to the inverted, floored diagonal.
		inv := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			d := sym.At(i, i)
			if d < minEig {
				d = minEig
			}
			inv.Set(i, i, 1/d)
		}
		return inv
	}

	vals := es.Values(nil)
	for i, v := range vals {
		if v < minEig {
			v = minEig
		}
		vals[i] = 1 / v
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	var inv mat.Dense
	inv.Product(&vecs, mat.NewDiagDense(n, vals), vecs.T())
	return &inv
}
