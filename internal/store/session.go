package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is one persisted counting session.
type Session struct {
	ID            string     `json:"id"`
	Exercise      string     `json:"exercise"`
	Arm           string     `json:"arm"`
	DownThreshold float64    `json:"down_threshold"`
	UpThreshold   float64    `json:"up_threshold"`
	MinConfidence float64    `json:"min_confidence"`
	Reps          int        `json:"reps"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// Active reports whether the session has not been ended yet.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// SessionRepository provides CRUD operations for sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

const sessionColumns = `id, exercise, arm, down_threshold, up_threshold, min_confidence, reps, started_at, ended_at`

// Create inserts a session. An empty ID is filled with a new UUID and a zero
// StartedAt with the current time.
func (r *SessionRepository) Create(s *Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	if s.Exercise == "" {
		s.Exercise = "pushup"
	}
	if s.Arm == "" {
		s.Arm = "right"
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Exercise, s.Arm, s.DownThreshold, s.UpThreshold, s.MinConfidence,
		s.Reps, s.StartedAt, nullTime(s.EndedAt),
	)
	return err
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	row := r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// List returns sessions, newest first. limit <= 0 means no limit.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// UpdateReps stores the current count of a session.
func (r *SessionRepository) UpdateReps(id string, reps int) error {
	result, err := r.db.Exec(`UPDATE sessions SET reps = ? WHERE id = ?`, reps, id)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

// End marks a session finished with its final count. Ending an already ended
// session keeps the first end time.
func (r *SessionRepository) End(id string, reps int, at time.Time) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET reps = ?, ended_at = COALESCE(ended_at, ?) WHERE id = ?`,
		reps, at, id,
	)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

// Delete removes a session and its events.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	s := &Session{}
	var ended sql.NullTime

	err := row.Scan(&s.ID, &s.Exercise, &s.Arm, &s.DownThreshold, &s.UpThreshold,
		&s.MinConfidence, &s.Reps, &s.StartedAt, &ended)
	if err != nil {
		return nil, err
	}

	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
