package serialmux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// TestSerialPort implements SerialPorter over a fixed read buffer.
type TestSerialPort struct {
	mu       sync.Mutex
	reader   io.Reader
	written  bytes.Buffer
	writeErr error
	closed   bool
}

func NewTestSerialPort(data string) *TestSerialPort {
	return &TestSerialPort{reader: bytes.NewBufferString(data)}
}

func (p *TestSerialPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	return p.reader.Read(buf)
}

func (p *TestSerialPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(data)
}

func (p *TestSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *TestSerialPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// shortWritePort reports fewer bytes written than requested.
type shortWritePort struct{ *TestSerialPort }

func (p shortWritePort) Write(data []byte) (int, error) { return len(data) - 1, nil }

func TestSubscribeUniqueIDs(t *testing.T) {
	mux := NewSerialMux(NewTestSerialPort(""))

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	if id1 == "" || id2 == "" || id1 == id2 {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", id1, id2)
	}
	if ch1 == nil || ch2 == nil {
		t.Fatal("expected non-nil channels")
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("expected channel to be closed after Unsubscribe")
	}
	// Unknown ids are ignored.
	mux.Unsubscribe("missing")
	if len(mux.subscribers) != 1 {
		t.Errorf("subscribers = %d, want 1", len(mux.subscribers))
	}
}

func TestMonitorFansOutLines(t *testing.T) {
	port := NewTestSerialPort("imu,0,0,0,1,0,0,0\nimu,0.01,0,0,1,0,0,0\n")
	mux := NewSerialMux(port)

	_, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}

	for _, ch := range []chan string{ch1, ch2} {
		if got := <-ch; got != "imu,0,0,0,1,0,0,0" {
			t.Errorf("first line = %q", got)
		}
		if got := <-ch; got != "imu,0.01,0,0,1,0,0,0" {
			t.Errorf("second line = %q", got)
		}
	}
	lines, skipped := mux.Stats()
	if lines != 2 || skipped != 0 {
		t.Errorf("Stats() = %d, %d; want 2, 0", lines, skipped)
	}
}

func TestMonitorSkipsSlowSubscribers(t *testing.T) {
	var data bytes.Buffer
	for i := 0; i < subscriberBuffer+10; i++ {
		data.WriteString("imu,0,0,0,1,0,0,0\n")
	}
	mux := NewSerialMux(NewTestSerialPort(data.String()))
	mux.Subscribe()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor() error = %v", err)
	}
	_, skipped := mux.Stats()
	if skipped != 10 {
		t.Errorf("skipped = %d, want 10", skipped)
	}
}

func TestMonitorContextCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	mux := NewSerialMux(&pipePort{r: r})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

type pipePort struct{ r *io.PipeReader }

func (p *pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *pipePort) Close() error                { return p.r.Close() }

func TestSendCommand(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)

	if err := mux.SendCommand("RATE 100"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if err := mux.SendCommand("STREAM ON\n"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if got, want := port.WrittenData(), "RATE 100\nSTREAM ON\n"; got != want {
		t.Errorf("written = %q, want %q", got, want)
	}

	port.writeErr = errors.New("boom")
	if err := mux.SendCommand("X"); err == nil {
		t.Error("expected write error")
	}

	short := NewSerialMux(shortWritePort{NewTestSerialPort("")})
	if err := short.SendCommand("X"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("SendCommand() error = %v, want ErrWriteFailed", err)
	}
}

func TestCloseClosesSubscribersAndPort(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected subscriber channel to be closed")
	}
	if !port.closed {
		t.Error("expected port to be closed")
	}
}
