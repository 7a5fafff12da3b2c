package sensor

import (
	"fmt"
	"strings"

	"github.com/banshee-data/dpoint/internal/fusion"
	"gonum.org/v1/gonum/spatial/r3"
)

// AxisMap is a signed axis permutation taking stylus body axes to the
// camera frame, row-major.
type AxisMap [9]float64

// IdentityAxes leaves readings unchanged.
var IdentityAxes = AxisMap{1, 0, 0, 0, 1, 0, 0, 0, 1}

// PenToCamera maps pen Y+ to camera X+, pen Z+ to camera Y- and pen X+ to
// camera Z+.
var PenToCamera = AxisMap{
	0, 1, 0,
	0, 0, -1,
	1, 0, 0,
}

// Apply maps v.
func (a AxisMap) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: a[0]*v.X + a[1]*v.Y + a[2]*v.Z,
		Y: a[3]*v.X + a[4]*v.Y + a[5]*v.Z,
		Z: a[6]*v.X + a[7]*v.Y + a[8]*v.Z,
	}
}

// ApplySample maps both the accelerometer and gyroscope vectors of s.
func (a AxisMap) ApplySample(s fusion.IMUSample) fusion.IMUSample {
	s.Accel = a.Apply(s.Accel)
	s.Gyro = a.Apply(s.Gyro)
	return s
}

// String renders the map in the form ParseAxisMap accepts.
func (a AxisMap) String() string {
	names := [3]string{"x", "y", "z"}
	parts := make([]string, 3)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			switch a[3*row+col] {
			case 1:
				parts[row] = names[col]
			case -1:
				parts[row] = "-" + names[col]
			}
		}
	}
	return strings.Join(parts, ",")
}

// ParseAxisMap parses a map such as "y,-z,x": each comma-separated entry
// names the body axis, optionally negated, that feeds the camera X, Y and
// Z axes in turn. "identity" and "pen" name the two presets.
func ParseAxisMap(s string) (AxisMap, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "identity":
		return IdentityAxes, nil
	case "pen":
		return PenToCamera, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return AxisMap{}, fmt.Errorf("axis map %q: expected 3 entries, got %d", s, len(parts))
	}
	var m AxisMap
	used := [3]bool{}
	for row, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		sign := 1.0
		if strings.HasPrefix(p, "-") {
			sign, p = -1, p[1:]
		} else if strings.HasPrefix(p, "+") {
			p = p[1:]
		}
		col := strings.Index("xyz", p)
		if len(p) != 1 || col < 0 {
			return AxisMap{}, fmt.Errorf("axis map %q: unknown axis %q", s, parts[row])
		}
		if used[col] {
			return AxisMap{}, fmt.Errorf("axis map %q: axis %q used twice", s, p)
		}
		used[col] = true
		m[3*row+col] = sign
	}
	return m, nil
}
