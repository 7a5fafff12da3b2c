package pipeline

import (
	"errors"
	"sync/atomic"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/monitoring"
	"github.com/banshee-data/dpoint/internal/replay"
)

// ErrRecorderBusy is returned when the record queue is full and the record
// was dropped.
var ErrRecorderBusy = errors.New("pipeline: record queue full")

// DefaultRecordQueue is the queue length used by cmd/dpoint: a few seconds
// of samples at the receiver's top rate.
const DefaultRecordQueue = 4096

// AsyncRecorder hands records to a background writer so the estimator's
// owner goroutine never waits on storage. Records are written in the
// order they were queued. When the queue is full the record is dropped.
type AsyncRecorder struct {
	next  Recorder
	queue chan func(Recorder) error
	done  chan struct{}

	errs    atomic.Int64
	written atomic.Int64
}

// NewAsyncRecorder returns a recorder queueing up to size records for next.
// Run must be started before records are expected to drain.
func NewAsyncRecorder(next Recorder, size int) *AsyncRecorder {
	if size < 1 {
		size = DefaultRecordQueue
	}
	return &AsyncRecorder{
		next:  next,
		queue: make(chan func(Recorder) error, size),
		done:  make(chan struct{}),
	}
}

// Run writes queued records until Close is called and the queue drains.
func (a *AsyncRecorder) Run() {
	defer close(a.done)
	for fn := range a.queue {
		if err := fn(a.next); err != nil {
			n := a.errs.Add(1)
			if n%1000 == 1 {
				monitoring.Logf("pipeline: background record failed (%d so far): %v", n, err)
			}
			continue
		}
		a.written.Add(1)
	}
}

// Close stops accepting records and waits for Run to flush the queue. No
// Record call may happen during or after Close.
func (a *AsyncRecorder) Close() {
	close(a.queue)
	<-a.done
}

// Errors returns how many queued records failed to write.
func (a *AsyncRecorder) Errors() int64 { return a.errs.Load() }

// Written returns how many queued records were written.
func (a *AsyncRecorder) Written() int64 { return a.written.Load() }

func (a *AsyncRecorder) enqueue(fn func(Recorder) error) error {
	select {
	case a.queue <- fn:
		return nil
	default:
		return ErrRecorderBusy
	}
}

func (a *AsyncRecorder) RecordIMUSample(s fusion.IMUSample) error {
	return a.enqueue(func(r Recorder) error { return r.RecordIMUSample(s) })
}

func (a *AsyncRecorder) RecordPoseMeasurement(m fusion.PoseMeasurement) error {
	return a.enqueue(func(r Recorder) error { return r.RecordPoseMeasurement(m) })
}

func (a *AsyncRecorder) RecordTrajectory(pts []replay.TrajectoryPoint) error {
	cp := append([]replay.TrajectoryPoint(nil), pts...)
	return a.enqueue(func(r Recorder) error { return r.RecordTrajectory(cp) })
}
