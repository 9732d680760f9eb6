package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	blurKernel    = 21
	pixelDelta    = 25
	analysisWidth = 160
)

// DefaultHoldFrames keeps the gate open for this many frames after the last
// frame with motion. The bottom of a slow push-up can look still for a second
// or two, and dropping to idle cadence there would miss the Down phase.
const DefaultHoldFrames = 15

// ActivityGate decides whether the scene in front of the camera is active,
// using frame differencing on a downscaled, blurred grayscale copy.
type ActivityGate struct {
	mu sync.Mutex

	threshold float64
	hold      int
	remaining int
	prev      gocv.Mat
	primed    bool
	lastPct   float64
}

// NewActivityGate creates a gate. threshold is the percentage of changed
// pixels that counts as motion; hold is how many frames to stay active after
// motion stops (0 uses DefaultHoldFrames).
func NewActivityGate(threshold float64, hold int) *ActivityGate {
	if hold <= 0 {
		hold = DefaultHoldFrames
	}
	return &ActivityGate{
		threshold: threshold,
		hold:      hold,
		prev:      gocv.NewMat(),
	}
}

// Observe feeds one frame and reports whether the scene is active along with
// the measured change percentage. The first frame only primes the baseline.
func (g *ActivityGate) Observe(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return g.remaining > 0, 0
	}

	cur := prepare(frame)

	if !g.primed {
		g.prev.Close()
		g.prev = cur
		g.primed = true
		g.lastPct = 0
		return false, 0
	}
	defer func() {
		g.prev.Close()
		g.prev = cur
	}()

	if cur.Rows() != g.prev.Rows() || cur.Cols() != g.prev.Cols() {
		// resolution changed; treat as motion and rebase
		g.remaining = g.hold
		g.lastPct = 100
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(cur, g.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, pixelDelta, 255, gocv.ThresholdBinary)

	total := mask.Rows() * mask.Cols()
	pct := 0.0
	if total > 0 {
		pct = float64(gocv.CountNonZero(mask)) / float64(total) * 100
	}
	g.lastPct = pct

	if pct > g.threshold {
		g.remaining = g.hold
		return true, pct
	}
	if g.remaining > 0 {
		g.remaining--
		return true, pct
	}
	return false, pct
}

// LastChange returns the change percentage of the most recent frame.
func (g *ActivityGate) LastChange() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastPct
}

// Reset drops the baseline and any pending hold.
func (g *ActivityGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prev.Close()
	g.prev = gocv.NewMat()
	g.primed = false
	g.remaining = 0
	g.lastPct = 0
}

// Close releases the baseline frame. The gate may be reused afterwards.
func (g *ActivityGate) Close() {
	g.Reset()
}

// prepare returns a small blurred grayscale copy of frame. The caller owns it.
func prepare(frame *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	if gray.Cols() > analysisWidth {
		h := gray.Rows() * analysisWidth / gray.Cols()
		if h < 1 {
			h = 1
		}
		small := gocv.NewMat()
		gocv.Resize(gray, &small, image.Point{X: analysisWidth, Y: h}, 0, 0, gocv.InterpolationArea)
		gray.Close()
		gray = small
	}

	out := gocv.NewMat()
	gocv.GaussianBlur(gray, &out, image.Point{X: blurKernel, Y: blurKernel}, 0, 0, gocv.BorderDefault)
	gray.Close()
	return out
}
