package sensor

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoseListenerDeliversDatagrams(t *testing.T) {
	l, err := ListenPoses("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan fusion.PoseMeasurement, 4)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, out) }()

	conn, err := net.Dial("udp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("garbage"))
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"t": 1, "position": [0, 0, 0.5], "rotation": [1,0,0,0,1,0,0,0,1]}`))
	require.NoError(t, err)

	select {
	case m := <-out:
		assert.Equal(t, 0.5, m.Position.Z)
		assert.Equal(t, 1.0, m.Time)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pose")
	}
	assert.Equal(t, int64(1), l.Received())
	assert.Equal(t, int64(1), l.Dropped())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
