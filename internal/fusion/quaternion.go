package fusion

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// NearestQuaternion returns whichever of q and -q is closer to ref in L2
// distance, together with that distance. Both represent the same rotation.
func NearestQuaternion(ref, q quat.Number) (quat.Number, float64) {
	e1 := quat.Abs(quat.Sub(ref, q))
	e2 := quat.Abs(quat.Add(ref, q))
	if e1 < e2 {
		return q, e1
	}
	return quat.Scale(-1, q), e2
}

// QuaternionFromRotation converts a row-major 3x3 rotation matrix into a
// unit quaternion using Shepperd's method. The returned quaternion maps
// body-frame vectors into the reference frame of the matrix.
func QuaternionFromRotation(r [9]float64) quat.Number {
	m00, m01, m02 := r[0], r[1], r[2]
	m10, m11, m12 := r[3], r[4], r[5]
	m20, m21, m22 := r[6], r[7], r[8]

	var q quat.Number
	switch tr := m00 + m11 + m22; {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: 0.25 * s, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{Real: (m21 - m12) / s, Imag: 0.25 * s, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: 0.25 * s, Kmag: (m12 + m21) / s}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: 0.25 * s}
	}

	n := quat.Abs(q)
	if n == 0 || !finite(n) {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// RotationMatrix returns the row-major rotation matrix of a unit quaternion.
func RotationMatrix(q quat.Number) [9]float64 {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// Rotate applies the rotation of the unit quaternion q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

func quatDot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Continuity tracks the most recently accepted orientation and keeps
// successive quaternions on the same hemisphere.
type Continuity struct {
	prev  quat.Number
	valid bool
}

// Align returns q, negated if its dot product with the previously accepted
// quaternion is negative, and records the result as accepted.
func (c *Continuity) Align(q quat.Number) quat.Number {
	if c.valid && quatDot(c.prev, q) < 0 {
		q = quat.Scale(-1, q)
	}
	c.prev = q
	c.valid = true
	return q
}

// Reset makes q the accepted reference without checking its sign.
func (c *Continuity) Reset(q quat.Number) {
	c.prev = q
	c.valid = true
}

// Last returns the most recently accepted quaternion.
func (c *Continuity) Last() (quat.Number, bool) {
	return c.prev, c.valid
}
