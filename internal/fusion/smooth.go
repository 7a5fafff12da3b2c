package fusion

import (
	"gonum.org/v1/gonum/mat"
)

// SmoothingItem is the corrected/predicted pair of one history step.
type SmoothingItem struct {
	Corrected FilterState
	Predicted FilterState
}

// Smooth runs a Rauch-Tung-Striebel backward pass over items, ordered
// oldest to newest, where items[k+1].Predicted was propagated from
// items[k].Corrected over dt. The newest smoothed estimate equals its
// corrected estimate.
func Smooth(items []SmoothingItem, dt, minEig float64) []FilterState {
	n := len(items)
	if n == 0 {
		return nil
	}
	out := make([]FilterState, n)
	out[n-1] = items[n-1].Corrected.Clone()

	for k := n - 2; k >= 0; k-- {
		cur, next := items[k], items[k+1]
		f := transitionJacobian(cur.Corrected.State, dt)

		// C = P(k|k) Fᵀ P(k+1|k)⁻¹
		var gain mat.Dense
		gain.Product(cur.Corrected.Cov, f.T(), flooredInverse(next.Predicted.Cov, minEig))

		var dx mat.VecDense
		dx.SubVec(out[k+1].State, next.Predicted.State)
		var step mat.VecDense
		step.MulVec(&gain, &dx)
		x := mat.NewVecDense(StateDim, nil)
		x.AddVec(cur.Corrected.State, &step)
		normalizeQuaternion(x)

		var dp mat.Dense
		dp.Sub(out[k+1].Cov, next.Predicted.Cov)
		var cov mat.Dense
		cov.Product(&gain, &dp, gain.T())
		cov.Add(&cov, cur.Corrected.Cov)
		symmetrize(&cov)

		out[k] = FilterState{State: x, Cov: &cov}
	}
	return out
}
