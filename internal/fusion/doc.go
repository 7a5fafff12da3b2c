// Package fusion owns the stylus pose estimator.
//
// Responsibilities: a 22-state extended Kalman filter fusing high-rate
// inertial samples with delayed camera poses, a bounded history of
// corrected/predicted state pairs, a fixed-lag Rauch-Tung-Striebel
// smoother with rollback and replay, divergence detection and reset,
// and quaternion sign continuity.
// Key types: Estimator, FilterState, History, CameraModel.
//
// The estimator is synchronous and single-owner: callers serialise
// UpdateIMU and UpdateCamera themselves (see internal/pipeline).
// No I/O or locking happens in this package.
package fusion
