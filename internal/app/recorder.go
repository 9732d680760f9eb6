package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/repcounter/internal/rep"
	"github.com/ayusman/repcounter/internal/store"
)

// Recorder persists a live session: one stored session per counting run and
// every phase event in its log. A reset ends the stored session and begins a
// new one.
type Recorder struct {
	store  *store.Store
	config func() rep.Config

	mu      sync.Mutex
	current string
	reps    int
}

// NewRecorder creates a recorder. config is consulted whenever a new stored
// session begins so the thresholds in effect are saved with it.
func NewRecorder(s *store.Store, config func() rep.Config) *Recorder {
	return &Recorder{store: s, config: config}
}

// SessionID returns the ID of the stored session being written, or "".
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Begin starts a new stored session.
func (r *Recorder) Begin(at time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.begin(at)
}

func (r *Recorder) begin(at time.Time) (string, error) {
	cfg := r.config()
	s := &store.Session{
		Arm:           cfg.Arm.Side(),
		DownThreshold: cfg.DownThreshold,
		UpThreshold:   cfg.UpThreshold,
		MinConfidence: cfg.MinConfidence,
		StartedAt:     at,
	}
	if err := r.store.Sessions().Create(s); err != nil {
		return "", err
	}

	r.current = s.ID
	r.reps = 0
	logrus.WithField("session_id", s.ID).Debug("recording session")
	return s.ID, nil
}

// Handle records the event carried by u, if any.
func (r *Recorder) Handle(u rep.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.Event == nil {
		r.reps = u.Snapshot.RepCount
		return nil
	}
	if r.current == "" {
		if _, err := r.begin(u.Event.At); err != nil {
			return err
		}
	}

	ev := u.Event
	if err := r.store.Events().Append(&store.Event{
		SessionID: r.current,
		Kind:      string(ev.Kind),
		FromPhase: string(ev.From),
		ToPhase:   string(ev.To),
		Angle:     ev.Angle,
		RepCount:  ev.RepCount,
		At:        ev.At,
	}); err != nil {
		return err
	}

	switch ev.Kind {
	case rep.EventRepCompleted:
		r.reps = ev.RepCount
		return r.store.Sessions().UpdateReps(r.current, ev.RepCount)
	case rep.EventReset:
	default:
		r.reps = ev.RepCount
		return nil
	}

	// the reset event carries the discarded count
	if err := r.store.Sessions().End(r.current, ev.RepCount, ev.At); err != nil {
		return err
	}
	_, err := r.begin(ev.At)
	return err
}

// End closes the stored session with the last seen count.
func (r *Recorder) End(at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == "" {
		return nil
	}
	err := r.store.Sessions().End(r.current, r.reps, at)
	r.current = ""
	return err
}

// Run records updates until ctx is done or the channel closes, then ends the
// stored session.
func (r *Recorder) Run(ctx context.Context, updates <-chan rep.Update) {
	defer func() {
		if err := r.End(time.Now()); err != nil {
			logrus.WithError(err).Error("failed to end recorded session")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			r.drain(updates)
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := r.Handle(u); err != nil {
				logrus.WithError(err).Error("failed to record session event")
			}
		}
	}
}

func (r *Recorder) drain(updates <-chan rep.Update) {
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := r.Handle(u); err != nil {
				logrus.WithError(err).Error("failed to record session event")
			}
		default:
			return
		}
	}
}
