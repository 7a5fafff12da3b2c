package sensor

import (
	"context"
	"errors"
	"net"
	"sync/atomic"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/monitoring"
)

// PoseListener receives JSON pose datagrams from the vision tracker.
type PoseListener struct {
	conn     net.PacketConn
	received atomic.Int64
	dropped  atomic.Int64
}

// ListenPoses binds a UDP socket on addr, e.g. ":9870".
func ListenPoses(addr string) (*PoseListener, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return &PoseListener{conn: conn}, nil
}

// Addr returns the bound local address.
func (l *PoseListener) Addr() net.Addr { return l.conn.LocalAddr() }

// Received returns the number of poses decoded so far.
func (l *PoseListener) Received() int64 { return l.received.Load() }

// Dropped returns the number of datagrams that failed to decode.
func (l *PoseListener) Dropped() int64 { return l.dropped.Load() }

// Close releases the socket.
func (l *PoseListener) Close() error { return l.conn.Close() }

// Run decodes datagrams and sends them on out until ctx is done. The
// socket is closed when Run returns.
func (l *PoseListener) Run(ctx context.Context, out chan<- fusion.PoseMeasurement) error {
	go func() {
		<-ctx.Done()
		l.conn.Close()
	}()

	buffer := make([]byte, 65536)
	for {
		n, _, err := l.conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			monitoring.Logf("pose listener read error: %v", err)
			continue
		}

		m, err := ParsePoseLine(buffer[:n])
		if err != nil {
			l.dropped.Add(1)
			monitoring.Verbosef("dropping pose datagram: %v", err)
			continue
		}
		l.received.Add(1)

		select {
		case out <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
