// Package rep turns a stream of pose samples into push-up repetitions.
//
// The engine computes the elbow angle of one arm per sample, runs it through
// a two-threshold hysteresis state machine and keeps a session snapshot of
// the current phase, repetition count and descent progress. It is pure signal
// processing: it never blocks, never owns a clock and never fails on bad
// samples, which are skipped without touching state.
package rep

import (
	"errors"
	"fmt"
	"math"

	"github.com/ayusman/repcounter/internal/detector"
)

// Default thresholds in degrees and the default confidence floor.
const (
	DefaultDownThreshold = 90.0
	DefaultUpThreshold   = 160.0
	DefaultMinConfidence = 0.5
)

// ErrInvalidConfig is returned when a counter configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid rep counter configuration")

// Arm names the three landmarks whose elbow angle is tracked.
type Arm struct {
	Shoulder string `json:"shoulder" yaml:"shoulder"`
	Elbow    string `json:"elbow" yaml:"elbow"`
	Wrist    string `json:"wrist" yaml:"wrist"`
}

// RightArm returns the right shoulder, elbow and wrist landmarks.
func RightArm() Arm {
	return Arm{Shoulder: detector.RightShoulder, Elbow: detector.RightElbow, Wrist: detector.RightWrist}
}

// LeftArm returns the left shoulder, elbow and wrist landmarks.
func LeftArm() Arm {
	return Arm{Shoulder: detector.LeftShoulder, Elbow: detector.LeftElbow, Wrist: detector.LeftWrist}
}

// Side returns "left" for the left arm landmarks and "right" otherwise.
func (a Arm) Side() string {
	if a == LeftArm() {
		return "left"
	}
	return "right"
}

// ArmBySide returns the arm for "left" or "right".
func ArmBySide(side string) (Arm, error) {
	switch side {
	case "right", "":
		return RightArm(), nil
	case "left":
		return LeftArm(), nil
	default:
		return Arm{}, fmt.Errorf("%w: unknown arm side %q", ErrInvalidConfig, side)
	}
}

// Config holds the tunables of the repetition counter.
type Config struct {
	// DownThreshold is the angle below which the arm counts as bent.
	DownThreshold float64 `json:"down_threshold"`
	// UpThreshold is the angle above which the arm counts as extended.
	UpThreshold float64 `json:"up_threshold"`
	// MinConfidence is the landmark confidence floor.
	MinConfidence float64 `json:"min_confidence"`
	// Arm selects the tracked landmarks.
	Arm Arm `json:"arm"`
}

// DefaultConfig returns the documented defaults: 90/160 degrees, 0.5 floor, right arm.
func DefaultConfig() Config {
	return Config{
		DownThreshold: DefaultDownThreshold,
		UpThreshold:   DefaultUpThreshold,
		MinConfidence: DefaultMinConfidence,
		Arm:           RightArm(),
	}
}

// Validate reports whether the configuration can drive a session.
func (c Config) Validate() error {
	thresholds := []struct {
		name  string
		value float64
	}{
		{"down threshold", c.DownThreshold},
		{"up threshold", c.UpThreshold},
	}
	for _, th := range thresholds {
		if math.IsNaN(th.value) || math.IsInf(th.value, 0) || th.value < 0 || th.value > 180 {
			return fmt.Errorf("%w: %s %v outside [0,180]", ErrInvalidConfig, th.name, th.value)
		}
	}
	if c.DownThreshold >= c.UpThreshold {
		return fmt.Errorf("%w: down threshold %v must be below up threshold %v",
			ErrInvalidConfig, c.DownThreshold, c.UpThreshold)
	}
	if math.IsNaN(c.MinConfidence) || c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: confidence floor %v outside [0,1]", ErrInvalidConfig, c.MinConfidence)
	}
	if c.Arm.Shoulder == "" || c.Arm.Elbow == "" || c.Arm.Wrist == "" {
		return fmt.Errorf("%w: arm landmarks must be named", ErrInvalidConfig)
	}
	return nil
}
