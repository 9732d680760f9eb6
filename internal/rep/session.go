package rep

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/repcounter/internal/detector"
)

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Phase           Phase     `json:"phase"`
	RepCount        int       `json:"rep_count"`
	ProgressPercent float64   `json:"progress_percent"`
	Angle           float64   `json:"angle"`
	HasAngle        bool      `json:"has_angle"`
	Tracking        bool      `json:"tracking"`
	Samples         int       `json:"samples"`
	Skipped         int       `json:"skipped"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Update is the outcome of one processed sample or reset.
type Update struct {
	Snapshot Snapshot   `json:"snapshot"`
	Event    *Event     `json:"event,omitempty"`
	Skip     SkipReason `json:"skip,omitempty"`
}

// Session owns the state of one counting session. Samples are applied one at
// a time under a mutex, so it is safe to feed it from several goroutines, but
// the resulting order is the order in which Process acquires the lock.
type Session struct {
	mu      sync.Mutex
	cfg     Config
	machine *Machine
	state   Snapshot
	subs    map[int]chan Update
	nextSub int
	dropped int
	closed  bool
	now     func() time.Time
}

// NewSession validates cfg and creates a session in PhaseUnknown.
func NewSession(cfg Config) (*Session, error) {
	m, err := NewMachine(cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		machine: m,
		subs:    make(map[int]chan Update),
		now:     time.Now,
	}
	s.state = Snapshot{Phase: PhaseUnknown, UpdatedAt: s.now()}
	return s, nil
}

// Config returns the configuration the session is running with.
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dropped returns how many updates were not delivered because a subscriber
// buffer was full.
func (s *Session) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Process applies one sample and returns the resulting update.
// Samples without a usable arm angle only bump the sample counters.
func (s *Session) Process(sample detector.PoseSample) Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := sample.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	s.state.Samples++
	s.state.UpdatedAt = at

	angle, skip := armAngle(sample, s.cfg.Arm, s.cfg.MinConfidence)
	if skip != SkipNone {
		s.state.Skipped++
		s.state.Tracking = false
		logrus.WithField("reason", skip).Debug("sample skipped")

		u := Update{Snapshot: s.state, Skip: skip}
		s.publish(u)
		return u
	}

	ev := s.machine.Step(angle)
	s.state.Phase = s.machine.Phase()
	s.state.RepCount = s.machine.Reps()
	s.state.ProgressPercent = Progress(angle, s.cfg)
	s.state.Angle = angle
	s.state.HasAngle = true
	s.state.Tracking = true

	if ev != nil {
		ev.At = at
		logrus.WithFields(logrus.Fields{
			"event": ev.Kind,
			"from":  ev.From,
			"to":    ev.To,
			"angle": angle,
			"reps":  ev.RepCount,
		}).Debug("phase transition")
	}

	u := Update{Snapshot: s.state, Event: ev}
	s.publish(u)
	return u
}

// Reset restarts counting with the current configuration.
func (s *Session) Reset() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reset()
}

// ResetWith restarts counting with a new configuration. On a validation error
// the session is left untouched.
func (s *Session) ResetWith(cfg Config) (Update, error) {
	m, err := NewMachine(cfg)
	if err != nil {
		return Update{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.machine = m
	return s.reset(), nil
}

func (s *Session) reset() Update {
	prev := s.state
	s.machine.Reset()
	s.state = Snapshot{Phase: PhaseUnknown, UpdatedAt: s.now()}

	u := Update{
		Snapshot: s.state,
		Event: &Event{
			Kind:     EventReset,
			From:     prev.Phase,
			To:       PhaseUnknown,
			RepCount: prev.RepCount,
			At:       s.state.UpdatedAt,
		},
	}
	s.publish(u)
	return u
}

// Subscribe registers an observer. Updates are delivered on the returned
// channel in processing order; when the buffer is full the update is dropped
// for that subscriber instead of blocking the session. The cancel function
// unregisters the observer and closes the channel.
func (s *Session) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Update, buffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Close closes every subscriber channel. Processing still works afterwards but
// nothing is delivered.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// publish must be called with s.mu held.
func (s *Session) publish(u Update) {
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			s.dropped++
		}
	}
}
