package detector

import (
	"errors"
	"math"
	"os/exec"
	"strings"
	"testing"
	"time"
)

const epsilon = 1e-9

// elbowAngle computes the angle at b with the law of cosines so the tests do
// not share code with the implementation under test.
func elbowAngle(a, b, c Landmark) float64 {
	ux, uy := a.X-b.X, a.Y-b.Y
	vx, vy := c.X-b.X, c.Y-b.Y
	cos := (ux*vx + uy*vy) / (math.Hypot(ux, uy) * math.Hypot(vx, vy))
	return math.Acos(cos) * 180 / math.Pi
}

func TestPoseSample_Find(t *testing.T) {
	sample := PlankPose()

	t.Run("finds present landmark", func(t *testing.T) {
		l, ok := sample.Find(RightElbow)
		if !ok {
			t.Fatal("expected right_elbow to be found")
		}
		if l.Name != RightElbow {
			t.Errorf("expected name %s, got %s", RightElbow, l.Name)
		}
	})

	t.Run("missing landmark", func(t *testing.T) {
		if _, ok := sample.Find(LeftAnkle); ok {
			t.Error("left_ankle should not be present")
		}
	})

	t.Run("empty sample", func(t *testing.T) {
		var empty PoseSample
		if !empty.Empty() {
			t.Error("zero sample should be empty")
		}
		if _, ok := empty.Find(RightWrist); ok {
			t.Error("empty sample should not contain landmarks")
		}
	})
}

func TestPoseSample_Without(t *testing.T) {
	sample := PlankPose().Without(RightWrist, LeftWrist)

	if _, ok := sample.Find(RightWrist); ok {
		t.Error("right_wrist should have been removed")
	}
	if _, ok := sample.Find(LeftWrist); ok {
		t.Error("left_wrist should have been removed")
	}
	if _, ok := sample.Find(RightElbow); !ok {
		t.Error("right_elbow should be kept")
	}
}

func TestFromIndexed(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	t.Run("names points in model order", func(t *testing.T) {
		points := make([]IndexedPoint, NumKeypoints)
		for i := range points {
			points[i] = IndexedPoint{X: float64(i), Y: float64(i) * 2, Score: 0.8}
		}

		sample := FromIndexed(points, ts)

		if len(sample.Landmarks) != NumKeypoints {
			t.Fatalf("expected %d landmarks, got %d", NumKeypoints, len(sample.Landmarks))
		}
		elbow, ok := sample.Find(RightElbow)
		if !ok {
			t.Fatal("right_elbow missing")
		}
		if elbow.X != 8 || elbow.Y != 16 {
			t.Errorf("right_elbow = (%f, %f), want (8, 16)", elbow.X, elbow.Y)
		}
		if !sample.Timestamp.Equal(ts) {
			t.Errorf("timestamp = %v, want %v", sample.Timestamp, ts)
		}
	})

	t.Run("extra points are ignored", func(t *testing.T) {
		points := make([]IndexedPoint, NumKeypoints+3)
		sample := FromIndexed(points, ts)
		if len(sample.Landmarks) != NumKeypoints {
			t.Errorf("expected %d landmarks, got %d", NumKeypoints, len(sample.Landmarks))
		}
	})

	t.Run("short output yields partial sample", func(t *testing.T) {
		sample := FromIndexed(make([]IndexedPoint, 7), ts)
		if _, ok := sample.Find(RightShoulder); !ok {
			t.Error("right_shoulder (index 6) should be present")
		}
		if _, ok := sample.Find(LeftElbow); ok {
			t.Error("left_elbow (index 7) should be absent")
		}
	})
}

func TestDecodeSamples(t *testing.T) {
	input := `# recorded push-ups
{"keypoints":[{"name":"right_elbow","x":0.4,"y":0.5,"score":0.9}]}

{"keypoints":[]}
`
	samples, err := DecodeSamples(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeSamples() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	elbow, ok := samples[0].Find(RightElbow)
	if !ok {
		t.Fatal("right_elbow missing from first sample")
	}
	if elbow.Confidence != 0.9 {
		t.Errorf("confidence = %f, want 0.9", elbow.Confidence)
	}
	if !samples[1].Empty() {
		t.Error("second sample should be empty")
	}

	_, err = DecodeSamples(strings.NewReader("{not json}\n"))
	if err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestParseResponse(t *testing.T) {
	ts := time.Now()

	t.Run("named keypoints", func(t *testing.T) {
		line := []byte(`{"poses":[{"score":0.7,"keypoints":[{"name":"right_wrist","x":0.1,"y":0.2,"score":0.6}]}]}`)
		sample, err := parseResponse(line, ts)
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		wrist, ok := sample.Find(RightWrist)
		if !ok {
			t.Fatal("right_wrist missing")
		}
		if math.Abs(wrist.X-0.1) > epsilon || math.Abs(wrist.Confidence-0.6) > epsilon {
			t.Errorf("unexpected wrist %+v", wrist)
		}
	})

	t.Run("unnamed keypoints use model order", func(t *testing.T) {
		line := []byte(`{"poses":[{"score":0.7,"keypoints":[{"x":1,"y":1,"score":0.1},{"x":2,"y":2,"score":0.2}]}]}`)
		sample, err := parseResponse(line, ts)
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		eye, ok := sample.Find(LeftEye)
		if !ok {
			t.Fatal("left_eye missing")
		}
		if eye.X != 2 {
			t.Errorf("left_eye X = %f, want 2", eye.X)
		}
	})

	t.Run("best scoring pose wins", func(t *testing.T) {
		line := []byte(`{"poses":[
			{"score":0.2,"keypoints":[{"name":"nose","x":0.1,"y":0.1,"score":0.9}]},
			{"score":0.8,"keypoints":[{"name":"nose","x":0.9,"y":0.9,"score":0.9}]}]}`)
		sample, err := parseResponse(line, ts)
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		nose, _ := sample.Find(Nose)
		if nose.X != 0.9 {
			t.Errorf("expected the 0.8 pose, got nose X = %f", nose.X)
		}
	})

	t.Run("no poses", func(t *testing.T) {
		sample, err := parseResponse([]byte(`{"poses":[]}`), ts)
		if err != nil {
			t.Fatalf("parseResponse() error = %v", err)
		}
		if !sample.Empty() {
			t.Error("expected empty sample")
		}
	})

	t.Run("service error", func(t *testing.T) {
		if _, err := parseResponse([]byte(`{"error":"model not loaded"}`), ts); err == nil {
			t.Error("expected error from service error field")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := parseResponse([]byte(`nope`), ts); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestNewMoveNetDetector_MissingScript(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptPath = "/nonexistent/pose_service.py"

	_, err := NewMoveNetDetector(cfg)
	if !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestMoveNetDetector_IdleShutdownSkipsStaleTimer(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	d := &MoveNetDetector{config: Config{IdleTimeoutSec: 3600}}
	d.cmd = exec.Command("cat")
	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := d.cmd.Start(); err != nil {
		t.Fatal(err)
	}
	d.stdin = stdin
	d.started = true

	d.resetIdleTimer()
	stale := d.idleGen
	// a detection lands before the first timer's callback gets the lock
	d.resetIdleTimer()

	if d.idleShutdown(stale) {
		t.Error("stale timer shut the service down")
	}
	if !d.started {
		t.Fatal("service stopped by a stale timer")
	}

	if !d.idleShutdown(d.idleGen) {
		t.Error("current timer did not shut the service down")
	}
	if d.started {
		t.Error("service still running after idle shutdown")
	}
}

func TestMockDetector(t *testing.T) {
	t.Run("returns empty sample by default", func(t *testing.T) {
		mock := NewMockDetector()

		sample, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if !sample.Empty() {
			t.Errorf("expected empty sample, got %v", sample)
		}
	})

	t.Run("returns queued samples in order then fixed sample", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetSample(BottomPose())
		mock.SetSequence([]PoseSample{PlankPose(), {}})

		first, _ := mock.Detect(nil)
		second, _ := mock.Detect(nil)
		third, _ := mock.Detect(nil)

		if first.Empty() {
			t.Error("first sample should be the plank pose")
		}
		if !second.Empty() {
			t.Error("second sample should be empty")
		}
		if third.Empty() {
			t.Error("third sample should fall back to the fixed sample")
		}
		if mock.Calls() != 3 {
			t.Errorf("Calls() = %d, want 3", mock.Calls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		sample, err := mock.Detect(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if !sample.Empty() {
			t.Errorf("expected empty sample when error is set, got %v", sample)
		}
	})

	t.Run("Close returns nil", func(t *testing.T) {
		if err := NewMockDetector().Close(); err != nil {
			t.Errorf("expected Close to return nil, got %v", err)
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*MoveNetDetector)(nil)
	})
}

func TestArmPose(t *testing.T) {
	angles := []float64{30, 70, 100, 145, 170}

	for _, want := range angles {
		sample := ArmPose(want, 0.75)

		for _, arm := range [][3]string{
			{RightShoulder, RightElbow, RightWrist},
			{LeftShoulder, LeftElbow, LeftWrist},
		} {
			s, _ := sample.Find(arm[0])
			e, _ := sample.Find(arm[1])
			w, _ := sample.Find(arm[2])

			got := elbowAngle(s, e, w)
			if math.Abs(got-want) > 1e-6 {
				t.Errorf("%s angle = %f, want %f", arm[1], got, want)
			}
			if e.Confidence != 0.75 {
				t.Errorf("%s confidence = %f, want 0.75", arm[1], e.Confidence)
			}
		}
	}
}
