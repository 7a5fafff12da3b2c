package serialmux

import (
	"io"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter over an in-memory pipe. Commands
// written to it are kept for inspection.
type MockSerialPort struct {
	r *io.PipeReader

	mu      sync.Mutex
	written []string
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, string(p))
	return len(p), nil
}

func (m *MockSerialPort) Close() error { return m.r.Close() }

// Written returns the commands written so far.
func (m *MockSerialPort) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.written...)
}

// NewMockSerialMux creates a SerialMux whose port emits next(i) every
// interval, for i = 0, 1, 2, ... The generator stops when the mux is
// closed or next returns an empty string.
func NewMockSerialMux(next func(i int) string, interval time.Duration) *SerialMux[*MockSerialPort] {
	r, w := io.Pipe()
	port := &MockSerialPort{r: r}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			line := next(i)
			if line == "" {
				return
			}
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return
			}
			<-ticker.C
		}
	}()

	return NewSerialMux(port)
}

// CycleLines returns a generator that repeats lines forever.
func CycleLines(lines []string) func(int) string {
	return func(i int) string {
		if len(lines) == 0 {
			return ""
		}
		return lines[i%len(lines)]
	}
}
