// Package sensor turns already-decoded text lines from the stylus receiver
// and the vision tracker into fusion samples.
package sensor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/dpoint/internal/fusion"
	"gonum.org/v1/gonum/spatial/r3"
)

// IMUPrefix starts every inertial line: imu,<t>,ax,ay,az,gx,gy,gz[,pressure]
const IMUPrefix = "imu"

// ParseIMULine parses one inertial line. Accelerations are in g and
// angular rates in rad/s.
func ParseIMULine(line string) (fusion.IMUSample, error) {
	var s fusion.IMUSample
	segments := strings.Split(strings.TrimSpace(line), ",")
	if len(segments) != 8 && len(segments) != 9 {
		return s, fmt.Errorf("invalid imu line %q: expected 8 or 9 segments, got %d", line, len(segments))
	}
	if segments[0] != IMUPrefix {
		return s, fmt.Errorf("invalid imu line %q: missing %q prefix", line, IMUPrefix)
	}

	vals := make([]float64, len(segments)-1)
	for i, seg := range segments[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(seg), 64)
		if err != nil {
			return s, fmt.Errorf("failed to parse imu field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	s.Time = vals[0]
	s.Accel = r3.Vec{X: vals[1], Y: vals[2], Z: vals[3]}
	s.Gyro = r3.Vec{X: vals[4], Y: vals[5], Z: vals[6]}
	if len(vals) == 8 {
		s.Pressure = vals[7]
	}
	if !s.Finite() {
		return s, fmt.Errorf("invalid imu line %q: %w", line, fusion.ErrNonFiniteSample)
	}
	return s, nil
}

// FormatIMULine is the inverse of ParseIMULine.
func FormatIMULine(s fusion.IMUSample) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return strings.Join([]string{
		IMUPrefix, f(s.Time),
		f(s.Accel.X), f(s.Accel.Y), f(s.Accel.Z),
		f(s.Gyro.X), f(s.Gyro.Y), f(s.Gyro.Z),
		f(s.Pressure),
	}, ",")
}

// PoseMessage is the JSON form of a tracker pose.
type PoseMessage struct {
	Time     float64    `json:"t"`
	Position [3]float64 `json:"position"`
	Rotation [9]float64 `json:"rotation"` // row-major
}

// ParsePoseLine decodes one JSON pose message.
func ParsePoseLine(data []byte) (fusion.PoseMeasurement, error) {
	var msg PoseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fusion.PoseMeasurement{}, fmt.Errorf("failed to unmarshal pose: %w", err)
	}
	m := fusion.PoseMeasurement{
		Time:     msg.Time,
		Position: r3.Vec{X: msg.Position[0], Y: msg.Position[1], Z: msg.Position[2]},
		Rotation: msg.Rotation,
	}
	if !m.Finite() {
		return m, fusion.ErrNonFiniteMeasurement
	}
	return m, nil
}

// NewPoseMessage converts a measurement into its JSON form.
func NewPoseMessage(m fusion.PoseMeasurement) PoseMessage {
	return PoseMessage{
		Time:     m.Time,
		Position: [3]float64{m.Position.X, m.Position.Y, m.Position.Z},
		Rotation: m.Rotation,
	}
}
