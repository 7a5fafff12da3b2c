package serialmux

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/monitoring"
	"github.com/banshee-data/dpoint/internal/sensor"
)

const (
	LineTypeIMU     = "imu"
	LineTypeStatus  = "status"
	LineTypeUnknown = "unknown"
)

// ClassifyLine returns the kind of a receiver line: inertial samples start
// with the imu prefix, status reports are JSON objects.
func ClassifyLine(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, sensor.IMUPrefix+","):
		return LineTypeIMU
	case strings.HasPrefix(line, "{"):
		return LineTypeStatus
	}
	return LineTypeUnknown
}

// Forwarder turns receiver lines into inertial samples.
type Forwarder struct {
	seq     atomic.Uint64
	samples atomic.Int64
	invalid atomic.Int64

	mu     sync.Mutex
	status map[string]any
}

// NewForwarder returns a Forwarder with no status.
func NewForwarder() *Forwarder {
	return &Forwarder{status: make(map[string]any)}
}

// Counts returns the number of forwarded samples and of rejected lines.
func (f *Forwarder) Counts() (samples, invalid int64) {
	return f.samples.Load(), f.invalid.Load()
}

// Status returns a copy of the latest status values reported by the receiver.
func (f *Forwarder) Status() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]any, len(f.status))
	for k, v := range f.status {
		out[k] = v
	}
	return out
}

// HandleLine parses one receiver line. It returns the sample and true for
// inertial lines; status lines update Status.
func (f *Forwarder) HandleLine(line string) (fusion.IMUSample, bool, error) {
	switch ClassifyLine(line) {
	case LineTypeIMU:
		s, err := sensor.ParseIMULine(line)
		if err != nil {
			f.invalid.Add(1)
			return s, false, err
		}
		s.Seq = f.seq.Add(1)
		f.samples.Add(1)
		return s, true, nil
	case LineTypeStatus:
		var values map[string]any
		if err := json.Unmarshal([]byte(line), &values); err != nil {
			f.invalid.Add(1)
			return fusion.IMUSample{}, false, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		f.mu.Lock()
		for k, v := range values {
			f.status[k] = v
		}
		f.mu.Unlock()
		monitoring.Verbosef("serial status: %s", line)
		return fusion.IMUSample{}, false, nil
	default:
		f.invalid.Add(1)
		return fusion.IMUSample{}, false, fmt.Errorf("unknown line type: %q", line)
	}
}

// Run subscribes to m and sends every parsed sample to out until ctx is
// done or the subscription is closed.
func (f *Forwarder) Run(ctx context.Context, m SerialMuxInterface, out chan<- fusion.IMUSample) error {
	id, lines := m.Subscribe()
	defer m.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			s, isSample, err := f.HandleLine(line)
			if err != nil {
				monitoring.Verbosef("serial: %v", err)
				continue
			}
			if !isSample {
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
