package rep

import "time"

// Phase is the coarse position of the tracked arm.
type Phase string

const (
	// PhaseUnknown is the state before any threshold crossing has been seen.
	PhaseUnknown Phase = "unknown"
	// PhaseUp means the arm is extended (top of the push-up).
	PhaseUp Phase = "up"
	// PhaseDown means the arm is bent (bottom of the push-up).
	PhaseDown Phase = "down"
)

// EventKind identifies a phase transition.
type EventKind string

const (
	// EventSeeded is the first threshold crossing out of PhaseUnknown. It sets
	// the phase without counting anything.
	EventSeeded EventKind = "seeded"
	// EventEnteredDown is an Up→Down transition.
	EventEnteredDown EventKind = "entered_down"
	// EventRepCompleted is a Down→Up transition; the count has been incremented.
	EventRepCompleted EventKind = "rep_completed"
	// EventReset is emitted by Session.Reset.
	EventReset EventKind = "reset"
)

// Event describes one phase change.
type Event struct {
	Kind     EventKind `json:"kind"`
	From     Phase     `json:"from"`
	To       Phase     `json:"to"`
	Angle    float64   `json:"angle"`
	RepCount int       `json:"rep_count"`
	At       time.Time `json:"at"`
}

// Machine is the hysteresis state machine. It is not safe for concurrent
// use; Session serializes access to it.
type Machine struct {
	down  float64
	up    float64
	phase Phase
	reps  int
}

// NewMachine creates a machine in PhaseUnknown with zero repetitions.
func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		down:  cfg.DownThreshold,
		up:    cfg.UpThreshold,
		phase: PhaseUnknown,
	}, nil
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Reps returns the number of completed repetitions.
func (m *Machine) Reps() int {
	return m.reps
}

// Step feeds one defined angle to the machine and returns the resulting
// event, or nil when the phase did not change. Angles on a threshold or
// between the thresholds never change the phase.
func (m *Machine) Step(angle float64) *Event {
	var next Phase
	switch {
	case angle < m.down && m.phase != PhaseDown:
		next = PhaseDown
	case angle > m.up && m.phase != PhaseUp:
		next = PhaseUp
	default:
		return nil
	}

	prev := m.phase
	m.phase = next

	ev := &Event{From: prev, To: next, Angle: angle}
	switch {
	case prev == PhaseUnknown:
		ev.Kind = EventSeeded
	case next == PhaseDown:
		ev.Kind = EventEnteredDown
	default:
		m.reps++
		ev.Kind = EventRepCompleted
	}
	ev.RepCount = m.reps

	return ev
}

// Reset returns the machine to PhaseUnknown with zero repetitions.
func (m *Machine) Reset() {
	m.phase = PhaseUnknown
	m.reps = 0
}
