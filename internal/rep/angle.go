package rep

import (
	"math"

	"github.com/ayusman/repcounter/internal/detector"
)

// minSegment is the shortest upper arm or forearm, in image units, that still
// yields a meaningful angle.
const minSegment = 1e-6

// JointAngle returns the interior angle at elbow, in degrees within [0,180],
// between the rays elbow→shoulder and elbow→wrist. Confidence is ignored.
func JointAngle(shoulder, elbow, wrist detector.Landmark) float64 {
	radians := math.Atan2(wrist.Y-elbow.Y, wrist.X-elbow.X) -
		math.Atan2(shoulder.Y-elbow.Y, shoulder.X-elbow.X)
	angle := math.Abs(radians * 180.0 / math.Pi)
	if angle > 180.0 {
		angle = 360.0 - angle
	}
	return angle
}

// SkipReason explains why a sample produced no angle.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipMissingLandmark SkipReason = "missing_landmark"
	SkipLowConfidence   SkipReason = "low_confidence"
	SkipDegenerate      SkipReason = "degenerate_geometry"
)

// armAngle extracts the tracked arm from a sample and computes its elbow
// angle, or reports why the sample must be skipped.
func armAngle(sample detector.PoseSample, arm Arm, minConfidence float64) (float64, SkipReason) {
	shoulder, ok1 := sample.Find(arm.Shoulder)
	elbow, ok2 := sample.Find(arm.Elbow)
	wrist, ok3 := sample.Find(arm.Wrist)
	if !ok1 || !ok2 || !ok3 {
		return 0, SkipMissingLandmark
	}

	if !confident(shoulder, minConfidence) ||
		!confident(elbow, minConfidence) ||
		!confident(wrist, minConfidence) {
		return 0, SkipLowConfidence
	}

	if math.Hypot(shoulder.X-elbow.X, shoulder.Y-elbow.Y) < minSegment ||
		math.Hypot(wrist.X-elbow.X, wrist.Y-elbow.Y) < minSegment {
		return 0, SkipDegenerate
	}

	angle := JointAngle(shoulder, elbow, wrist)
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0, SkipDegenerate
	}
	return angle, SkipNone
}

// confident is false for NaN scores.
func confident(l detector.Landmark, floor float64) bool {
	return l.Confidence >= floor
}
