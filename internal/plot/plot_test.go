package plot

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/dpoint/internal/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func samplePoints() []replay.TrajectoryPoint {
	pts := make([]replay.TrajectoryPoint, 50)
	for i := range pts {
		a := float64(i) / 10
		pts[i] = replay.TrajectoryPoint{
			Time:     10 + float64(i)*0.01,
			Position: r3.Vec{X: math.Cos(a), Y: math.Sin(a), Z: 0.01 * a},
		}
	}
	return pts
}

func TestTopDownAndOverTime(t *testing.T) {
	t.Parallel()

	pts := samplePoints()
	td := TopDown("f", pts)
	require.Len(t, td.XY, 50)
	assert.Equal(t, 1.0, td.XY[0].X)

	z := OverTime("z", pts, AxisZ)
	assert.Equal(t, 0.0, z.XY[0].X, "time is relative to the first point")
	assert.InDelta(t, 0.49, z.XY[49].X, 1e-9)
	assert.InDelta(t, 0.049, z.XY[49].Y, 1e-12)
	assert.Equal(t, "Z", AxisZ.String())
}

func TestValuesSkipsNaN(t *testing.T) {
	t.Parallel()

	pts := samplePoints()[:3]
	l := Values("jitter", pts, []float64{math.NaN(), 1, 2})
	require.Len(t, l.XY, 2)
	assert.InDelta(t, 0.01, l.XY[0].X, 1e-12)
}

func TestWritePNG(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "xy.png")
	pts := samplePoints()
	err := WritePNG(path, "Trajectory", "X (m)", "Y (m)", TopDown("decoupled", pts), TopDown("empty", nil))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestWriteXYAndTimeSeries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pts := samplePoints()
	require.NoError(t, WriteXY(filepath.Join(dir, "xy.png"), "Top down", map[string][]replay.TrajectoryPoint{
		"coupled":   pts,
		"decoupled": pts[10:],
	}))
	require.NoError(t, WriteTimeSeries(filepath.Join(dir, "t.png"), "Position", pts))

	for _, name := range []string{"xy.png", "t.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b"}, sortedKeys(map[string][]replay.TrajectoryPoint{"b": nil, "a": nil}))
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := RenderHTML(&buf, "Trail", "session 1", "X (m)", "Y (m)", TopDown("tip", samplePoints()))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "echarts")
	assert.Contains(t, buf.String(), "Trail")
}

func TestGenerateColors(t *testing.T) {
	t.Parallel()

	assert.Nil(t, generateColors(0))
	cs := generateColors(3)
	require.Len(t, cs, 3)
	assert.NotEqual(t, cs[0], cs[1])
}
