package detector

import "gocv.io/x/gocv"

// Detector defines the interface for pose detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the landmarks of the most
	// prominent person. Returns an empty sample if nobody is detected.
	Detect(frame *gocv.Mat) (PoseSample, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Model variants understood by the pose service.
const (
	ModelLightning = "lightning"
	ModelThunder   = "thunder"
)

// Config holds configuration options for pose detection.
type Config struct {
	// Model selects the MoveNet variant (default: lightning).
	Model string

	// ScriptPath points at the pose service script. When empty the usual
	// locations are searched.
	ScriptPath string

	// Python is the interpreter used to run the service. When empty a
	// virtual environment is searched, then python3 is used.
	Python string

	// IdleTimeoutSec stops the service after this many seconds without a
	// detection request (default: 30).
	IdleTimeoutSec int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Model:          ModelLightning,
		IdleTimeoutSec: 30,
	}
}
