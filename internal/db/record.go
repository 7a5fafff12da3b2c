package db

import (
	"fmt"
	"sync"

	"github.com/banshee-data/dpoint/internal/fusion"
	"github.com/banshee-data/dpoint/internal/replay"
	"gonum.org/v1/gonum/spatial/r3"
)

// Recorder appends inputs and outputs of one session. Inputs share a
// single sequence so that SessionEvents can restore their arrival order.
// It is safe for concurrent use.
type Recorder struct {
	db      *DB
	session string
	run     string

	mu  sync.Mutex
	seq int64
	idx int64
}

// LiveRun names the trajectory produced while recording.
const LiveRun = "live"

// NewRecorder returns a recorder appending to session. Trajectory points
// are stored under run.
func (db *DB) NewRecorder(session, run string) (*Recorder, error) {
	r := &Recorder{db: db, session: session, run: run}
	// Continue numbering when a session is resumed.
	err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM (
		SELECT seq FROM imu_samples WHERE session_id = ?
		UNION ALL SELECT seq FROM pose_measurements WHERE session_id = ?)`, session, session).Scan(&r.seq)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}
	err = db.QueryRow(`SELECT COALESCE(MAX(idx), 0) FROM trajectory WHERE session_id = ? AND run = ?`, session, run).Scan(&r.idx)
	if err != nil {
		return nil, fmt.Errorf("failed to read trajectory index: %w", err)
	}
	return r, nil
}

func (r *Recorder) RecordIMUSample(s fusion.IMUSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	_, err := r.db.Exec(
		`INSERT INTO imu_samples (session_id, seq, sample_seq, t, ax, ay, az, gx, gy, gz, pressure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.session, r.seq, int64(s.Seq), s.Time,
		s.Accel.X, s.Accel.Y, s.Accel.Z, s.Gyro.X, s.Gyro.Y, s.Gyro.Z, s.Pressure,
	)
	if err != nil {
		return fmt.Errorf("failed to insert imu sample: %w", err)
	}
	return nil
}

func (r *Recorder) RecordPoseMeasurement(m fusion.PoseMeasurement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rot := m.Rotation
	_, err := r.db.Exec(
		`INSERT INTO pose_measurements (session_id, seq, t, px, py, pz,
			r00, r01, r02, r10, r11, r12, r20, r21, r22)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.session, r.seq, m.Time, m.Position.X, m.Position.Y, m.Position.Z,
		rot[0], rot[1], rot[2], rot[3], rot[4], rot[5], rot[6], rot[7], rot[8],
	)
	if err != nil {
		return fmt.Errorf("failed to insert pose: %w", err)
	}
	return nil
}

// RecordTrajectory appends pts to the recorder's run in one transaction.
func (r *Recorder) RecordTrajectory(pts []replay.TrajectoryPoint) error {
	if len(pts) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO trajectory (session_id, run, idx, t, x, y, z, source) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	idx := r.idx
	for _, p := range pts {
		idx++
		if _, err := stmt.Exec(r.session, r.run, idx, p.Time, p.Position.X, p.Position.Y, p.Position.Z, string(p.Source)); err != nil {
			return fmt.Errorf("failed to insert trajectory point: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.idx = idx
	return nil
}

// SessionEvents returns the recorded inputs of session in arrival order.
func (db *DB) SessionEvents(session string) ([]replay.Event, error) {
	var imu []replay.Event
	rows, err := db.Query(`SELECT seq, sample_seq, t, ax, ay, az, gx, gy, gz, pressure
		FROM imu_samples WHERE session_id = ? ORDER BY seq`, session)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			seq, sampleSeq int64
			s              fusion.IMUSample
		)
		if err := rows.Scan(&seq, &sampleSeq, &s.Time,
			&s.Accel.X, &s.Accel.Y, &s.Accel.Z, &s.Gyro.X, &s.Gyro.Y, &s.Gyro.Z, &s.Pressure); err != nil {
			rows.Close()
			return nil, err
		}
		s.Seq = uint64(sampleSeq)
		imu = append(imu, replay.IMUEvent(seq, s))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var poses []replay.Event
	rows, err = db.Query(`SELECT seq, t, px, py, pz, r00, r01, r02, r10, r11, r12, r20, r21, r22
		FROM pose_measurements WHERE session_id = ? ORDER BY seq`, session)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			seq int64
			m   fusion.PoseMeasurement
			r   = &m.Rotation
		)
		if err := rows.Scan(&seq, &m.Time, &m.Position.X, &m.Position.Y, &m.Position.Z,
			&r[0], &r[1], &r[2], &r[3], &r[4], &r[5], &r[6], &r[7], &r[8]); err != nil {
			rows.Close()
			return nil, err
		}
		poses = append(poses, replay.PoseEvent(seq, m))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return mergeBySeq(imu, poses), nil
}

// mergeBySeq merges two seq-ordered event lists.
func mergeBySeq(a, b []replay.Event) []replay.Event {
	out := make([]replay.Event, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Seq <= b[j].Seq {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Trajectory returns the stored points of one run of session.
func (db *DB) Trajectory(session, run string) ([]replay.TrajectoryPoint, error) {
	rows, err := db.Query(`SELECT t, x, y, z, source FROM trajectory
		WHERE session_id = ? AND run = ? ORDER BY idx`, session, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pts []replay.TrajectoryPoint
	for rows.Next() {
		var (
			p      replay.TrajectoryPoint
			pos    r3.Vec
			source string
		)
		if err := rows.Scan(&p.Time, &pos.X, &pos.Y, &pos.Z, &source); err != nil {
			return nil, err
		}
		p.Position = pos
		p.Source = replay.Source(source)
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// Runs lists the trajectory runs stored for session.
func (db *DB) Runs(session string) ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT run FROM trajectory WHERE session_id = ? ORDER BY run`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a stored trajectory run so that it can be rewritten.
func (db *DB) DeleteRun(session, run string) error {
	_, err := db.Exec(`DELETE FROM trajectory WHERE session_id = ? AND run = ?`, session, run)
	return err
}
