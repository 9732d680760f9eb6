// Package app wires the camera, the pose detector and the rep counting
// session together and runs the sampling loop.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/repcounter/internal/capture"
	"github.com/ayusman/repcounter/internal/detector"
	"github.com/ayusman/repcounter/internal/metrics"
	"github.com/ayusman/repcounter/internal/rep"
	"github.com/ayusman/repcounter/internal/store"
)

// Sampling cadence. Idle matches the 200ms interval the thresholds were tuned at.
const (
	IdleFPS   = 5
	ActiveFPS = 10
)

// Config holds configuration options for the application.
type Config struct {
	Store    *store.Store
	Metrics  *metrics.Manager
	Counter  rep.Config
	Camera   capture.Config
	Detector detector.Config

	IdleFPS         int
	ActiveFPS       int
	MotionThreshold float64
	HoldFrames      int
}

// App orchestrates capture, detection and counting.
type App struct {
	config   Config
	camera   capture.Camera
	gate     *capture.ActivityGate
	detector detector.Detector
	session  *rep.Session
	recorder *Recorder
	frames   *FrameBuffer

	mu      sync.RWMutex
	enabled bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates the application. The counter configuration saved in the store,
// if any, takes precedence over config.Counter.
func New(config Config) (*App, error) {
	if config.IdleFPS <= 0 {
		config.IdleFPS = IdleFPS
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = ActiveFPS
	}
	if config.MotionThreshold <= 0 {
		config.MotionThreshold = 1.0
	}
	if config.Counter == (rep.Config{}) {
		config.Counter = rep.DefaultConfig()
	}

	counter := config.Counter
	if config.Store != nil {
		saved, err := config.Store.Settings().LoadCounter(counter)
		if err != nil {
			logrus.WithError(err).Warn("ignoring saved counter settings")
		}
		counter = saved
	}

	session, err := rep.NewSession(counter)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:  config,
		camera:  capture.NewCamera(config.Camera),
		gate:    capture.NewActivityGate(config.MotionThreshold, config.HoldFrames),
		session: session,
		frames:  NewFrameBuffer(),
		enabled: true,
	}
	if config.Store != nil {
		a.recorder = NewRecorder(config.Store, session.Config)
	}
	if config.Metrics != nil {
		config.Metrics.WatchDropped(session)
	}

	if d, err := detector.NewMoveNetDetector(config.Detector); err == nil {
		a.detector = d
		logrus.WithField("model", config.Detector.Model).Info("using MoveNet pose detection")
	} else {
		logrus.WithError(err).Warn("pose service not available, using mock detector")
		a.detector = detector.NewMockDetector()
	}

	return a, nil
}

// SetEnabled pauses or resumes sampling without stopping the pipeline.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether sampling is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// IsRunning reports whether the pipeline goroutine is active.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cancel != nil
}

// SetDetector replaces the pose detector.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// Detector returns the pose detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// SetCamera replaces the camera. It must be called before Start.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.camera
}

// Session returns the counting session.
func (a *App) Session() *rep.Session {
	return a.session
}

// Frames returns the buffer holding the latest JPEG frame for viewers.
func (a *App) Frames() *FrameBuffer {
	return a.frames
}

// Recorder returns the session recorder, or nil without a store.
func (a *App) Recorder() *Recorder {
	return a.recorder
}

// SessionID returns the ID of the stored session being recorded, or "".
func (a *App) SessionID() string {
	if a.recorder == nil {
		return ""
	}
	return a.recorder.SessionID()
}

// Start opens the camera and runs the sampling loop until ctx is done or
// Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.config.IdleFPS)
	a.gate.Reset()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.recorder != nil {
		updates, unsubscribe := a.session.Subscribe(256)
		if _, err := a.recorder.Begin(time.Now()); err != nil {
			logrus.WithError(err).Error("failed to record session start")
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer unsubscribe()
			a.recorder.Run(ctx, updates)
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runPipeline(ctx)
	}()

	logrus.Info("counting pipeline started")
	return nil
}

// Stop halts the pipeline and releases the camera and detector.
func (a *App) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.wg.Wait()

	if err := a.Camera().Close(); err != nil {
		logrus.WithError(err).Warn("error closing camera")
	}
	a.gate.Close()

	if d := a.Detector(); d != nil {
		if err := d.Close(); err != nil {
			logrus.WithError(err).Warn("error closing detector")
		}
	}

	logrus.Info("counting pipeline stopped")
}

// Restart discards the current count and starts a new session, picking up
// counter settings saved since the last start.
func (a *App) Restart() (rep.Update, error) {
	cfg := a.session.Config()
	if a.config.Store != nil {
		saved, err := a.config.Store.Settings().LoadCounter(cfg)
		if err != nil {
			logrus.WithError(err).Warn("ignoring saved counter settings")
		}
		cfg = saved
	}

	u, err := a.session.ResetWith(cfg)
	if err != nil {
		return u, err
	}
	if a.config.Metrics != nil {
		a.config.Metrics.Observe(u)
	}
	logrus.WithField("discarded_reps", u.Event.RepCount).Info("session restarted")
	return u, nil
}
