package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/repcounter/internal/rep"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"sessions", "rep_events", "settings"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}
}

func TestNewStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	sess := &Session{DownThreshold: 90, UpThreshold: 160, MinConfidence: 0.5}
	if err := s.Sessions().Create(sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if _, err := s.Sessions().GetByID(sess.ID); err != nil {
		t.Errorf("session lost across reopen: %v", err)
	}
}

func TestNewStore_Memory(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) error = %v", err)
	}
	defer s.Close()

	if err := s.Settings().Set("k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, err := s.Settings().Get("k"); err != nil || v != "v" {
		t.Errorf("Get() = %q, %v", v, err)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := s.DB().Ping(); err == nil {
		t.Error("expected error when pinging closed database")
	}
}

func TestSessionRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	start := time.Date(2026, 3, 1, 7, 30, 0, 0, time.UTC)
	sess := &Session{
		Arm:           "left",
		DownThreshold: 90,
		UpThreshold:   160,
		MinConfidence: 0.5,
		StartedAt:     start,
	}

	t.Run("create fills defaults", func(t *testing.T) {
		if err := repo.Create(sess); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if sess.ID == "" {
			t.Error("expected generated ID")
		}
		if sess.Exercise != "pushup" {
			t.Errorf("Exercise = %q, want pushup", sess.Exercise)
		}
	})

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID(sess.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Arm != "left" || got.UpThreshold != 160 || got.Reps != 0 {
			t.Errorf("unexpected session %+v", got)
		}
		if !got.StartedAt.Equal(start) {
			t.Errorf("StartedAt = %v, want %v", got.StartedAt, start)
		}
		if !got.Active() {
			t.Error("new session should be active")
		}
	})

	t.Run("update reps", func(t *testing.T) {
		if err := repo.UpdateReps(sess.ID, 7); err != nil {
			t.Fatalf("UpdateReps() error = %v", err)
		}
		got, _ := repo.GetByID(sess.ID)
		if got.Reps != 7 {
			t.Errorf("Reps = %d, want 7", got.Reps)
		}
	})

	t.Run("end keeps first end time", func(t *testing.T) {
		first := start.Add(10 * time.Minute)
		if err := repo.End(sess.ID, 12, first); err != nil {
			t.Fatalf("End() error = %v", err)
		}
		if err := repo.End(sess.ID, 12, first.Add(time.Hour)); err != nil {
			t.Fatalf("second End() error = %v", err)
		}

		got, _ := repo.GetByID(sess.ID)
		if got.Active() {
			t.Fatal("ended session should not be active")
		}
		if !got.EndedAt.Equal(first) {
			t.Errorf("EndedAt = %v, want %v", got.EndedAt, first)
		}
		if got.Reps != 12 {
			t.Errorf("Reps = %d, want 12", got.Reps)
		}
	})

	t.Run("missing ids", func(t *testing.T) {
		if _, err := repo.GetByID("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetByID() error = %v, want ErrNotFound", err)
		}
		if err := repo.UpdateReps("nope", 1); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateReps() error = %v, want ErrNotFound", err)
		}
		if err := repo.End("nope", 1, time.Now()); !errors.Is(err, ErrNotFound) {
			t.Errorf("End() error = %v, want ErrNotFound", err)
		}
		if err := repo.Delete("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
	})
}

func TestSessionRepository_List(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		sess := &Session{DownThreshold: 90, UpThreshold: 160, MinConfidence: 0.5, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.Create(sess); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, sess.ID)
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List(0) returned %d sessions, want 3", len(all))
	}
	if all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Error("sessions should be listed newest first")
	}

	two, err := repo.List(2)
	if err != nil {
		t.Fatalf("List(2) error = %v", err)
	}
	if len(two) != 2 {
		t.Errorf("List(2) returned %d sessions", len(two))
	}
}

func TestEventRepository(t *testing.T) {
	s := newTestStore(t)
	sess := &Session{DownThreshold: 90, UpThreshold: 160, MinConfidence: 0.5}
	if err := s.Sessions().Create(sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	events := []*Event{
		{SessionID: sess.ID, Kind: string(rep.EventSeeded), FromPhase: "unknown", ToPhase: "up", Angle: 170, At: at},
		{SessionID: sess.ID, Kind: string(rep.EventEnteredDown), FromPhase: "up", ToPhase: "down", Angle: 70, At: at.Add(time.Second)},
		{SessionID: sess.ID, Kind: string(rep.EventRepCompleted), FromPhase: "down", ToPhase: "up", Angle: 170, RepCount: 1, At: at.Add(2 * time.Second)},
	}

	for i, e := range events {
		if err := s.Events().Append(e); err != nil {
			t.Fatalf("Append() #%d error = %v", i, err)
		}
		if e.Seq != i+1 {
			t.Errorf("event %d Seq = %d, want %d", i, e.Seq, i+1)
		}
		if e.ID == 0 {
			t.Errorf("event %d has no ID", i)
		}
	}

	got, err := s.Events().ListBySession(sess.ID)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[2].Kind != string(rep.EventRepCompleted) || got[2].RepCount != 1 {
		t.Errorf("unexpected last event %+v", got[2])
	}
	if !got[1].At.Equal(at.Add(time.Second)) {
		t.Errorf("At = %v, want %v", got[1].At, at.Add(time.Second))
	}

	stored, _ := s.Sessions().GetByID(sess.ID)
	if stored.Reps != 1 {
		t.Errorf("session Reps = %d, want 1 after appending the rep event", stored.Reps)
	}

	t.Run("unknown session", func(t *testing.T) {
		err := s.Events().Append(&Event{SessionID: "missing", Kind: "seeded", At: at})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Append() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("deleting the session removes its events", func(t *testing.T) {
		if err := s.Sessions().Delete(sess.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		left, err := s.Events().ListBySession(sess.ID)
		if err != nil {
			t.Fatalf("ListBySession() error = %v", err)
		}
		if len(left) != 0 {
			t.Errorf("expected cascade delete, %d events left", len(left))
		}
	})
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	settings := s.Settings()

	t.Run("missing key", func(t *testing.T) {
		if _, err := settings.Get("absent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("set overwrites", func(t *testing.T) {
		settings.Set("theme", "dark")
		settings.Set("theme", "light")
		v, err := settings.Get("theme")
		if err != nil || v != "light" {
			t.Errorf("Get() = %q, %v; want light", v, err)
		}
	})

	t.Run("counter defaults when unsaved", func(t *testing.T) {
		cfg, err := settings.LoadCounter(rep.DefaultConfig())
		if err != nil {
			t.Fatalf("LoadCounter() error = %v", err)
		}
		if cfg != rep.DefaultConfig() {
			t.Errorf("LoadCounter() = %+v, want defaults", cfg)
		}
	})

	t.Run("counter round trip", func(t *testing.T) {
		want := rep.DefaultConfig()
		want.DownThreshold = 100
		want.UpThreshold = 150
		want.Arm = rep.LeftArm()

		if err := settings.SaveCounter(want); err != nil {
			t.Fatalf("SaveCounter() error = %v", err)
		}
		got, err := settings.LoadCounter(rep.DefaultConfig())
		if err != nil {
			t.Fatalf("LoadCounter() error = %v", err)
		}
		if got != want {
			t.Errorf("LoadCounter() = %+v, want %+v", got, want)
		}
	})

	t.Run("invalid counter rejected", func(t *testing.T) {
		bad := rep.DefaultConfig()
		bad.DownThreshold = 170
		if err := settings.SaveCounter(bad); !errors.Is(err, rep.ErrInvalidConfig) {
			t.Errorf("SaveCounter() error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("corrupt counter falls back", func(t *testing.T) {
		settings.Set(counterKey, "{not json")
		cfg, err := settings.LoadCounter(rep.DefaultConfig())
		if err == nil {
			t.Error("expected decode error")
		}
		if cfg != rep.DefaultConfig() {
			t.Errorf("LoadCounter() = %+v, want defaults on error", cfg)
		}
	})
}
