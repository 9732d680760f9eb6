package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per counting session.
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			exercise TEXT NOT NULL DEFAULT 'pushup',
			arm TEXT NOT NULL DEFAULT 'right',
			down_threshold REAL NOT NULL,
			up_threshold REAL NOT NULL,
			min_confidence REAL NOT NULL,
			reps INTEGER NOT NULL DEFAULT 0 CHECK(reps >= 0),
			started_at DATETIME NOT NULL,
			ended_at DATETIME
		)`,

		// Phase transitions, in the order the engine emitted them.
		`CREATE TABLE IF NOT EXISTS rep_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			from_phase TEXT NOT NULL,
			to_phase TEXT NOT NULL,
			angle REAL NOT NULL,
			rep_count INTEGER NOT NULL,
			at DATETIME NOT NULL,
			UNIQUE(session_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_rep_events_session_id ON rep_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
