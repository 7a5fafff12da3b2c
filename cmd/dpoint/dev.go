package main

import (
	"context"
	"math"
	"time"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/sensor"
	"github.com/banshee-data/dpoint/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// devCircle is the path the simulated tip traces: a 5 cm circle 40 cm in
// front of the camera, once every four seconds.
const (
	devRadius = 0.05
	devDepth  = 0.4
	devPeriod = 4.0
)

// devIMULines returns a generator of at-rest inertial lines spaced dt apart.
func devIMULines(dt float64) func(int) string {
	return func(i int) string {
		return sensor.FormatIMULine(fusion.IMUSample{
			Time:  float64(i) * dt,
			Accel: r3.Vec{Z: 1},
		})
	}
}

// devPose returns the simulated camera pose at t seconds.
func devPose(t float64) fusion.PoseMeasurement {
	a := 2 * math.Pi * t / devPeriod
	return fusion.PoseMeasurement{
		Time:     t,
		Position: r3.Vec{X: devRadius * math.Cos(a), Y: devRadius * math.Sin(a), Z: devDepth},
		Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
}

// runDevPoses sends a simulated pose every interval until ctx is done.
func runDevPoses(ctx context.Context, clock timeutil.Clock, out chan<- fusion.PoseMeasurement, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	start := clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			select {
			case out <- devPose(now.Sub(start).Seconds()):
			case <-ctx.Done():
				return
			}
		}
	}
}
