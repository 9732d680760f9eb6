package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

func fpsInterval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}

// runPipeline samples the camera on a ticker. The cadence rises to the active
// rate while the activity gate sees motion and drops back once it closes.
// Every sample goes through the detector and into the session; the gate only
// decides how often.
func (a *App) runPipeline(ctx context.Context) {
	active := false
	ticker := time.NewTicker(fpsInterval(a.config.IdleFPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			moving, ok := a.step()
			if !ok || moving == active {
				continue
			}

			active = moving
			fps := a.config.IdleFPS
			if active {
				fps = a.config.ActiveFPS
			}
			a.Camera().SetFPS(fps)
			ticker.Reset(fpsInterval(fps))
			logrus.WithFields(logrus.Fields{
				"fps":    fps,
				"change": a.gate.LastChange(),
			}).Debug("sampling cadence changed")
		}
	}
}

// step reads one frame, updates the activity gate and the frame buffer,
// runs detection and feeds the session. ok is false when no frame was read.
func (a *App) step() (active bool, ok bool) {
	frame, err := a.Camera().ReadFrame()
	if err != nil {
		a.frameError()
		logrus.WithError(err).Debug("error reading frame")
		return false, false
	}
	defer frame.Close()

	active, _ = a.gate.Observe(frame)

	if a.frames.Watched() {
		a.publishFrame(frame)
	}

	d := a.Detector()
	if d == nil {
		return active, true
	}

	start := time.Now()
	sample, err := d.Detect(frame)
	if m := a.config.Metrics; m != nil {
		m.ObserveInference(time.Since(start))
	}
	if err != nil {
		a.frameError()
		logrus.WithError(err).Warn("pose detection failed")
		return active, true
	}

	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	u := a.session.Process(sample)
	if m := a.config.Metrics; m != nil {
		m.Observe(u)
	}

	return active, true
}

func (a *App) publishFrame(frame *gocv.Mat) {
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return
	}
	defer buf.Close()

	data := buf.GetBytes()
	jpeg := make([]byte, len(data))
	copy(jpeg, data)
	a.frames.Set(jpeg)
}

func (a *App) frameError() {
	if m := a.config.Metrics; m != nil {
		m.CounterFrameErr.Inc()
	}
}
