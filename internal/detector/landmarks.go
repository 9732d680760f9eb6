// Package detector provides pose detection interfaces and types for repetition counting.
package detector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Body keypoint names following the MoveNet / COCO convention.
// See: https://github.com/tensorflow/tfjs-models/tree/master/pose-detection
const (
	Nose          = "nose"
	LeftEye       = "left_eye"
	RightEye      = "right_eye"
	LeftEar       = "left_ear"
	RightEar      = "right_ear"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// KeypointNames lists the keypoint names in model output order.
// Index i of a MoveNet result corresponds to KeypointNames[i].
var KeypointNames = [...]string{
	Nose, LeftEye, RightEye, LeftEar, RightEar,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow,
	LeftWrist, RightWrist, LeftHip, RightHip,
	LeftKnee, RightKnee, LeftAnkle, RightAnkle,
}

// NumKeypoints is the number of keypoints produced by the pose model.
const NumKeypoints = len(KeypointNames)

// Landmark is a named 2D body point with a detection confidence in [0,1].
type Landmark struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"score"`
}

// PoseSample is the set of landmarks observed at one sampling tick.
// Timestamp is informational; arrival order is what consumers rely on.
type PoseSample struct {
	Landmarks []Landmark `json:"keypoints"`
	Timestamp time.Time  `json:"timestamp,omitempty"`
}

// Find returns the landmark with the given name.
func (p PoseSample) Find(name string) (Landmark, bool) {
	for _, l := range p.Landmarks {
		if l.Name == name {
			return l, true
		}
	}
	return Landmark{}, false
}

// Empty reports whether the sample carries no landmarks.
func (p PoseSample) Empty() bool {
	return len(p.Landmarks) == 0
}

// IndexedPoint is an unnamed keypoint as emitted by models that report
// results in a fixed order.
type IndexedPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// FromIndexed names index-ordered keypoints using KeypointNames.
// Points beyond NumKeypoints are ignored.
func FromIndexed(points []IndexedPoint, ts time.Time) PoseSample {
	n := len(points)
	if n > NumKeypoints {
		n = NumKeypoints
	}

	sample := PoseSample{
		Landmarks: make([]Landmark, 0, n),
		Timestamp: ts,
	}
	for i := 0; i < n; i++ {
		sample.Landmarks = append(sample.Landmarks, Landmark{
			Name:       KeypointNames[i],
			X:          points[i].X,
			Y:          points[i].Y,
			Confidence: points[i].Score,
		})
	}
	return sample
}

// DecodeSamples reads a JSON-lines recording, one PoseSample per line.
// Blank lines and lines starting with '#' are skipped.
func DecodeSamples(r io.Reader) ([]PoseSample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var samples []PoseSample
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var sample PoseSample
		if err := json.Unmarshal([]byte(text), &sample); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	return samples, nil
}
