package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one recording: a contiguous run of the live pipeline or an
// import of recorded data.
type Session struct {
	ID         string          `json:"session_id"`
	Label      string          `json:"label"`
	Config     json.RawMessage `json:"config"`
	StartedAt  time.Time       `json:"started_at"`
	IMUSamples int             `json:"imu_samples"`
	Poses      int             `json:"poses"`
}

// CreateSession stores a new session. config is serialised as JSON so that
// a playback can reproduce the tuning of the live run.
func (db *DB) CreateSession(label string, config any) (*Session, error) {
	cfg := json.RawMessage("{}")
	if config != nil {
		b, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session config: %w", err)
		}
		cfg = b
	}
	s := &Session{
		ID:        uuid.NewString(),
		Label:     label,
		Config:    cfg,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, label, config_json, started_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Label, string(s.Config), s.StartedAt.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// GetSession returns the session with the given id.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(sessionQuery+` WHERE s.session_id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return s, nil
}

// ResolveSession returns the session with the given id, or the newest
// session when id is empty.
func (db *DB) ResolveSession(id string) (*Session, error) {
	if id != "" {
		return db.GetSession(id)
	}
	s, err := scanSession(db.QueryRow(sessionQuery + ` ORDER BY s.started_at DESC, s.rowid DESC LIMIT 1`))
	if err != nil {
		return nil, fmt.Errorf("failed to find latest session: %w", err)
	}
	return s, nil
}

// ListSessions returns all sessions, newest first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(sessionQuery + ` ORDER BY s.started_at DESC, s.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

const sessionQuery = `SELECT s.session_id, s.label, s.config_json, s.started_at,
	(SELECT COUNT(*) FROM imu_samples i WHERE i.session_id = s.session_id),
	(SELECT COUNT(*) FROM pose_measurements p WHERE p.session_id = s.session_id)
	FROM sessions s`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s       Session
		cfg     string
		started int64
	)
	if err := row.Scan(&s.ID, &s.Label, &cfg, &started, &s.IMUSamples, &s.Poses); err != nil {
		return nil, err
	}
	s.Config = json.RawMessage(cfg)
	s.StartedAt = time.UnixMilli(started).UTC()
	return &s, nil
}
