package detector

import (
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	sample PoseSample
	queue  []PoseSample
	err    error
	calls  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetSample sets the sample returned by Detect once the queue is drained.
func (m *MockDetector) SetSample(sample PoseSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sample = sample
}

// SetSequence queues samples that Detect returns one per call, in order.
func (m *MockDetector) SetSequence(samples []PoseSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append([]PoseSample(nil), samples...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the next queued sample, the fixed sample, or the configured error.
func (m *MockDetector) Detect(frame *gocv.Mat) (PoseSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return PoseSample{}, m.err
	}
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		return next, nil
	}
	return m.sample, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// armLength is the synthetic upper arm and forearm length in normalized image units.
const armLength = 0.2

// ArmPose returns a sample in which both elbows form the given interior angle
// (degrees). The upper arm points straight up from the elbow and the forearm is
// rotated by the angle, so a 180 degree pose is a fully extended arm.
// Every landmark carries the given confidence.
func ArmPose(angle, confidence float64) PoseSample {
	rad := angle * math.Pi / 180.0
	dx := armLength * math.Sin(rad)
	dy := -armLength * math.Cos(rad)

	sample := PoseSample{Timestamp: time.Now()}

	// Right arm, elbow at (0.40, 0.50)
	sample.Landmarks = append(sample.Landmarks,
		Landmark{Name: RightShoulder, X: 0.40, Y: 0.50 - armLength, Confidence: confidence},
		Landmark{Name: RightElbow, X: 0.40, Y: 0.50, Confidence: confidence},
		Landmark{Name: RightWrist, X: 0.40 + dx, Y: 0.50 + dy, Confidence: confidence},
	)

	// Left arm, mirrored, elbow at (0.60, 0.50)
	sample.Landmarks = append(sample.Landmarks,
		Landmark{Name: LeftShoulder, X: 0.60, Y: 0.50 - armLength, Confidence: confidence},
		Landmark{Name: LeftElbow, X: 0.60, Y: 0.50, Confidence: confidence},
		Landmark{Name: LeftWrist, X: 0.60 - dx, Y: 0.50 + dy, Confidence: confidence},
	)

	sample.Landmarks = append(sample.Landmarks,
		Landmark{Name: Nose, X: 0.50, Y: 0.20, Confidence: confidence},
	)

	return sample
}

// PlankPose returns a sample with arms extended at 170 degrees (top of a push-up).
func PlankPose() PoseSample {
	return ArmPose(170, 0.9)
}

// BottomPose returns a sample with arms bent at 70 degrees (bottom of a push-up).
func BottomPose() PoseSample {
	return ArmPose(70, 0.9)
}

// Without returns a copy of the sample with the named landmarks removed.
func (p PoseSample) Without(names ...string) PoseSample {
	out := PoseSample{Timestamp: p.Timestamp}
	for _, l := range p.Landmarks {
		drop := false
		for _, n := range names {
			if l.Name == n {
				drop = true
				break
			}
		}
		if !drop {
			out.Landmarks = append(out.Landmarks, l)
		}
	}
	return out
}
