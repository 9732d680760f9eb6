package store

import (
	"database/sql"
	"time"
)

// Event is a persisted phase transition.
type Event struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Kind      string    `json:"kind"`
	FromPhase string    `json:"from"`
	ToPhase   string    `json:"to"`
	Angle     float64   `json:"angle"`
	RepCount  int       `json:"rep_count"`
	At        time.Time `json:"at"`
}

// EventRepository stores the event log of sessions.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Append adds an event to the end of its session's log and updates the
// session's rep count in the same transaction. Seq and ID are filled in.
func (r *EventRepository) Append(e *Event) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM sessions WHERE id = ?`, e.SessionID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	err = tx.QueryRow(
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM rep_events WHERE session_id = ?`,
		e.SessionID,
	).Scan(&e.Seq)
	if err != nil {
		return err
	}

	result, err := tx.Exec(
		`INSERT INTO rep_events (session_id, seq, kind, from_phase, to_phase, angle, rep_count, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Seq, e.Kind, e.FromPhase, e.ToPhase, e.Angle, e.RepCount, e.At,
	)
	if err != nil {
		return err
	}
	if e.ID, err = result.LastInsertId(); err != nil {
		return err
	}

	// A reset event carries the discarded count; the session keeps it as its total.
	if _, err := tx.Exec(`UPDATE sessions SET reps = ? WHERE id = ?`, e.RepCount, e.SessionID); err != nil {
		return err
	}

	return tx.Commit()
}

// ListBySession returns a session's events in emission order.
func (r *EventRepository) ListBySession(sessionID string) ([]Event, error) {
	rows, err := r.db.Query(
		`SELECT id, session_id, seq, kind, from_phase, to_phase, angle, rep_count, at
		 FROM rep_events WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.Kind, &e.FromPhase,
			&e.ToPhase, &e.Angle, &e.RepCount, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
