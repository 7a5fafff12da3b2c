// Package trail keeps the bounded on-screen trail of tip positions and
// blends retroactive corrections into it.
package trail

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultBlendAlpha is the exponent of the blend power curve.
const DefaultBlendAlpha = 1.5

// Trail is a fixed-capacity ring of positions, oldest first. It is safe
// for concurrent use.
type Trail struct {
	mu     sync.RWMutex
	points []r3.Vec
	head   int
	n      int
	alpha  float64
}

// New returns an empty trail holding up to capacity points.
func New(capacity int, alpha float64) *Trail {
	if capacity < 1 {
		capacity = 1
	}
	if alpha <= 0 {
		alpha = DefaultBlendAlpha
	}
	return &Trail{points: make([]r3.Vec, capacity), alpha: alpha}
}

// Len returns the number of points held.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.n
}

// Append adds p as the newest point, dropping the oldest when full.
func (t *Trail) Append(p r3.Vec) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(p)
}

func (t *Trail) appendLocked(p r3.Vec) {
	if t.n == len(t.points) {
		t.points[t.head] = p
		t.head = (t.head + 1) % len(t.points)
		return
	}
	t.points[(t.head+t.n)%len(t.points)] = p
	t.n++
}

// Replace overwrites the newest len(pts) points with a blend of their old
// values and pts. Older points keep most of their old value, the newest
// takes pts almost entirely. When the trail holds fewer points than pts,
// only the newest overlapping points are blended; an empty trail takes pts
// as they are.
func (t *Trail) Replace(pts []r3.Vec) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(pts) == 0 {
		return
	}
	if t.n == 0 {
		start := max(0, len(pts)-len(t.points))
		for _, p := range pts[start:] {
			t.appendLocked(p)
		}
		return
	}

	k := min(len(pts), t.n)
	pts = pts[len(pts)-k:]
	mix := MixFactors(k, t.alpha)
	for i, p := range pts {
		idx := (t.head + t.n - k + i) % len(t.points)
		old := t.points[idx]
		t.points[idx] = r3.Add(r3.Scale(1-mix[i], old), r3.Scale(mix[i], p))
	}
}

// Points returns a copy of the trail, oldest first.
func (t *Trail) Points() []r3.Vec {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]r3.Vec, t.n)
	for i := range out {
		out[i] = t.points[(t.head+i)%len(t.points)]
	}
	return out
}

// Tail returns a copy of at most the newest n points, oldest first.
func (t *Trail) Tail(n int) []r3.Vec {
	pts := t.Points()
	if n >= 0 && n < len(pts) {
		return pts[len(pts)-n:]
	}
	return pts
}

// Reset drops every point.
func (t *Trail) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.head, t.n = 0, 0
}

// MixFactors returns linspace(1/(2n), 1, n) raised to alpha: the weight
// given to the new value for each of n points, oldest first.
func MixFactors(n int, alpha float64) []float64 {
	if n <= 0 {
		return nil
	}
	mix := make([]float64, n)
	if n == 1 {
		mix[0] = 0.5
	} else {
		floats.Span(mix, 1/(2*float64(n)), 1)
	}
	for i, v := range mix {
		mix[i] = math.Pow(v, alpha)
	}
	return mix
}
