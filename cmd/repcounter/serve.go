package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/repcounter/internal/app"
	"github.com/ayusman/repcounter/internal/capture"
	"github.com/ayusman/repcounter/internal/config"
	"github.com/ayusman/repcounter/internal/detector"
	"github.com/ayusman/repcounter/internal/metrics"
	"github.com/ayusman/repcounter/internal/narrate"
	"github.com/ayusman/repcounter/internal/plugin"
	"github.com/ayusman/repcounter/internal/publish"
	"github.com/ayusman/repcounter/internal/server"
	"github.com/ayusman/repcounter/internal/store"
)

const (
	svcName         = "repcounter"
	shutdownTimeout = 5 * time.Second
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Count push-ups and serve the web UI",
		Long:  `Open the camera, count repetitions and serve the live count, history and settings over HTTP.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), c.cfg, nil)
		},
	}
}

// attachFunc lets a caller hook extra consumers of the running app into the group.
type attachFunc func(ctx context.Context, a *app.App, g *errgroup.Group)

// runServe runs the pipeline, the HTTP server and the optional narrator and
// MQTT publisher until ctx is done or one of them fails.
func runServe(ctx context.Context, cfg *config.Config, attach attachFunc) error {
	counter, err := cfg.Counter.Rep()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	logrus.WithField("path", st.Path()).Info("session store opened")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := app.New(app.Config{
		Store:   st,
		Metrics: metrics.NewManager(svcName, "counter", reg),
		Counter: counter,
		Camera: capture.Config{
			DeviceID: cfg.Camera.Device,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.IdleFPS,
		},
		Detector: detector.Config{
			Model:          cfg.Detector.Model,
			ScriptPath:     cfg.Detector.Script,
			Python:         cfg.Detector.Python,
			IdleTimeoutSec: cfg.Detector.IdleTimeoutSec,
		},
		IdleFPS:         cfg.Camera.IdleFPS,
		ActiveFPS:       cfg.Camera.ActiveFPS,
		MotionThreshold: cfg.Camera.MotionThreshold,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	webDir := findWebDir(cfg.Server.WebDir)
	if webDir != "" {
		logrus.WithField("dir", webDir).Info("serving static files")
	}

	hs := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: server.New(server.Config{
			StaticDir: webDir,
			Store:     st,
			Counter:   a,
			Frames:    a.Frames(),
			Defaults:  counter,
			Gatherer:  reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logrus.WithField("addr", hs.Addr).Info("HTTP server listening")
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	})

	if cfg.Plugins.Narrate {
		startNarrator(ctx, g, cfg.Plugins, a)
	}

	if cfg.MQTT.Enabled() {
		startPublisher(ctx, g, cfg.MQTT, a)
	}

	if attach != nil {
		attach(ctx, a, g)
	}

	return g.Wait()
}

func startNarrator(ctx context.Context, g *errgroup.Group, cfg config.PluginsConfig, a *app.App) {
	mgr := plugin.NewManager(cfg.Dir)
	if err := mgr.Discover(); err != nil {
		logrus.WithError(err).Warn("plugin discovery failed, narration disabled")
		return
	}

	n := narrate.New(narrate.NewPluginSpeaker(mgr, plugin.NewExecutor(cfg.TimeoutMs), cfg.Speech))
	updates, cancel := a.Session().Subscribe(32)
	g.Go(func() error {
		defer cancel()
		return n.Run(ctx, updates)
	})
}

// startPublisher connects to the broker. A broker that cannot be reached is
// logged and skipped so counting still works offline.
func startPublisher(ctx context.Context, g *errgroup.Group, cfg config.MQTTConfig, a *app.App) {
	p, err := publish.New(publish.Config{
		Broker:      cfg.Broker,
		ClientID:    cfg.ClientID,
		TopicPrefix: cfg.TopicPrefix,
		QoS:         cfg.QoS,
		Timeout:     time.Duration(cfg.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		logrus.WithError(err).Error("MQTT publisher disabled")
		return
	}

	err = p.OnCommand(func(cmd publish.Command) {
		if cmd.Command != publish.CommandRestart {
			logrus.WithField("command", cmd.Command).Warn("unknown MQTT command")
			return
		}
		if _, err := a.Restart(); err != nil {
			logrus.WithError(err).Error("restart from MQTT failed")
		}
	})
	if err != nil {
		logrus.WithError(err).Warn("MQTT control topic unavailable")
	}

	updates, cancel := a.Session().Subscribe(64)
	g.Go(func() error {
		defer cancel()
		return p.Run(ctx, updates)
	})
}
