package sensor

import (
	"errors"
	"testing"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestParseIMULine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		line    string
		want    fusion.IMUSample
		wantErr bool
	}{
		{
			name: "without pressure",
			line: "imu,1.25,0.01,-0.02,0.98,0.1,0.2,-0.3",
			want: fusion.IMUSample{Time: 1.25, Accel: r3.Vec{X: 0.01, Y: -0.02, Z: 0.98}, Gyro: r3.Vec{X: 0.1, Y: 0.2, Z: -0.3}},
		},
		{
			name: "with pressure and whitespace",
			line: " imu,2, 0,0,1, 0,0,0, 0.4\n",
			want: fusion.IMUSample{Time: 2, Accel: r3.Vec{Z: 1}, Pressure: 0.4},
		},
		{name: "wrong prefix", line: "cam,1,0,0,1,0,0,0", wantErr: true},
		{name: "too short", line: "imu,1,0,0", wantErr: true},
		{name: "not a number", line: "imu,1,0,x,1,0,0,0", wantErr: true},
		{name: "nan", line: "imu,1,0,NaN,1,0,0,0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIMULine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIMULineRejectsNonFinite(t *testing.T) {
	t.Parallel()

	_, err := ParseIMULine("imu,1,0,0,+Inf,0,0,0")
	assert.True(t, errors.Is(err, fusion.ErrNonFiniteSample))
}

func TestFormatIMULineRoundTrip(t *testing.T) {
	t.Parallel()

	s := fusion.IMUSample{Time: 0.5, Accel: r3.Vec{X: 0.1, Y: 0.2, Z: 0.9}, Gyro: r3.Vec{Z: -1.5}, Pressure: 0.25}
	got, err := ParseIMULine(FormatIMULine(s))
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestParsePoseLine(t *testing.T) {
	t.Parallel()

	m, err := ParsePoseLine([]byte(`{"t": 3.5, "position": [0.1, 0.2, 0.3], "rotation": [1,0,0, 0,1,0, 0,0,1]}`))
	require.NoError(t, err)
	assert.Equal(t, 3.5, m.Time)
	assert.Equal(t, r3.Vec{X: 0.1, Y: 0.2, Z: 0.3}, m.Position)
	assert.Equal(t, [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, m.Rotation)

	back := NewPoseMessage(m)
	assert.Equal(t, [3]float64{0.1, 0.2, 0.3}, back.Position)

	_, err = ParsePoseLine([]byte(`{"t": `))
	assert.Error(t, err)
}

func TestAxisMap(t *testing.T) {
	t.Parallel()

	v := r3.Vec{X: 1, Y: 2, Z: 3}
	assert.Equal(t, v, IdentityAxes.Apply(v))
	assert.Equal(t, r3.Vec{X: 2, Y: -3, Z: 1}, PenToCamera.Apply(v))

	s := PenToCamera.ApplySample(fusion.IMUSample{Accel: v, Gyro: v})
	assert.Equal(t, r3.Vec{X: 2, Y: -3, Z: 1}, s.Gyro)
}

func TestParseAxisMap(t *testing.T) {
	t.Parallel()

	m, err := ParseAxisMap("y,-z,x")
	require.NoError(t, err)
	assert.Equal(t, PenToCamera, m)
	assert.Equal(t, "y,-z,x", m.String())

	m, err = ParseAxisMap("pen")
	require.NoError(t, err)
	assert.Equal(t, PenToCamera, m)

	m, err = ParseAxisMap("")
	require.NoError(t, err)
	assert.Equal(t, IdentityAxes, m)
	assert.Equal(t, "x,y,z", m.String())

	for _, bad := range []string{"x,y", "x,x,z", "x,y,w", "x,y,zz"} {
		_, err := ParseAxisMap(bad)
		assert.Error(t, err, bad)
	}
}
