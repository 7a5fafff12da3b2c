// Package replay feeds recorded inertial and camera events through an
// estimator offline and collects the resulting trajectory.
package replay

import (
	"sort"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/monitoring"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind distinguishes inertial from camera events.
type Kind string

const (
	KindIMU  Kind = "imu"
	KindPose Kind = "pose"
)

// Event is one recorded input. Seq orders events that share a timestamp.
type Event struct {
	Kind Kind
	Seq  int64
	Time float64
	IMU  fusion.IMUSample
	Pose fusion.PoseMeasurement
}

// IMUEvent wraps an inertial sample.
func IMUEvent(seq int64, s fusion.IMUSample) Event {
	return Event{Kind: KindIMU, Seq: seq, Time: s.Time, IMU: s}
}

// PoseEvent wraps a camera pose.
func PoseEvent(seq int64, m fusion.PoseMeasurement) Event {
	return Event{Kind: KindPose, Seq: seq, Time: m.Time, Pose: m}
}

// Source tags where a trajectory point came from.
type Source string

const (
	SourceIMU    Source = "imu"    // estimator output after an inertial step
	SourceCamera Source = "camera" // estimator output after a camera fusion
	SourceRaw    Source = "raw"    // measured pose without filtering
)

// TrajectoryPoint is one tip position of an output trajectory.
type TrajectoryPoint struct {
	Time     float64 `json:"t"`
	Position r3.Vec  `json:"position"`
	Source   Source  `json:"source"`
}

// Filter is the estimator surface replay drives.
type Filter interface {
	UpdateIMU(fusion.IMUSample) error
	UpdateCamera(fusion.PoseMeasurement) ([]r3.Vec, error)
	TipPosition() r3.Vec
}

// Sort orders events by time, then by sequence.
func Sort(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Time != events[j].Time {
			return events[i].Time < events[j].Time
		}
		return events[i].Seq < events[j].Seq
	})
}

// Coalesce drops camera events repeating the previous camera timestamp
// and inertial events older than the previous inertial event. events must
// already be sorted.
func Coalesce(events []Event) []Event {
	out := make([]Event, 0, len(events))
	lastPose, lastIMU := 0.0, 0.0
	havePose, haveIMU := false, false
	for _, ev := range events {
		switch ev.Kind {
		case KindPose:
			if havePose && ev.Time == lastPose {
				continue
			}
			lastPose, havePose = ev.Time, true
		case KindIMU:
			if haveIMU && ev.Time < lastIMU {
				continue
			}
			lastIMU, haveIMU = ev.Time, true
		}
		out = append(out, ev)
	}
	return out
}

// EstimateDt returns the spacing of the first two inertial events, or
// fallback when fewer than two exist or the spacing is not positive.
func EstimateDt(events []Event, fallback float64) float64 {
	var times []float64
	for _, ev := range events {
		if ev.Kind != KindIMU {
			continue
		}
		times = append(times, ev.Time)
		if len(times) == 2 {
			if dt := times[1] - times[0]; dt > 0 {
				return dt
			}
			return fallback
		}
	}
	return fallback
}

// Options tunes Run.
type Options struct {
	// Axes is applied to every inertial sample before it reaches the filter.
	Axes func(fusion.IMUSample) fusion.IMUSample
	// SkipNegativeTime drops events recorded before the session clock started.
	SkipNegativeTime bool
}

// Run feeds events, in order, through f. Once the first camera pose has
// been seen it emits one point per inertial step and the last position of
// every camera result. Non-finite inputs are logged and skipped.
func Run(f Filter, events []Event, opts Options) []TrajectoryPoint {
	var out []TrajectoryPoint
	seenCamera := false
	skipped := 0

	for _, ev := range events {
		if opts.SkipNegativeTime && ev.Time < 0 {
			continue
		}
		switch ev.Kind {
		case KindIMU:
			s := ev.IMU
			if opts.Axes != nil {
				s = opts.Axes(s)
			}
			if err := f.UpdateIMU(s); err != nil {
				skipped++
				monitoring.Verbosef("replay: skipping imu seq=%d: %v", ev.Seq, err)
				continue
			}
			if seenCamera {
				out = append(out, TrajectoryPoint{Time: ev.Time, Position: f.TipPosition(), Source: SourceIMU})
			}
		case KindPose:
			pts, err := f.UpdateCamera(ev.Pose)
			if err != nil {
				skipped++
				monitoring.Verbosef("replay: skipping pose seq=%d: %v", ev.Seq, err)
				continue
			}
			seenCamera = true
			if len(pts) > 0 {
				out = append(out, TrajectoryPoint{Time: ev.Time, Position: pts[len(pts)-1], Source: SourceCamera})
			}
		}
	}
	if skipped > 0 {
		monitoring.Logf("replay: skipped %d non-finite events", skipped)
	}
	return out
}

// RawPoses returns the measured tip positions of every camera event,
// unfiltered. offset is the body-frame tip offset.
func RawPoses(events []Event, offset r3.Vec) []TrajectoryPoint {
	var out []TrajectoryPoint
	for _, ev := range events {
		if ev.Kind != KindPose || !ev.Pose.Finite() {
			continue
		}
		tip := r3.Add(ev.Pose.Position, fusion.Rotate(ev.Pose.Orientation(), offset))
		out = append(out, TrajectoryPoint{Time: ev.Time, Position: tip, Source: SourceRaw})
	}
	return out
}
