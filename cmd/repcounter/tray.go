package main

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/repcounter/internal/app"
	"github.com/ayusman/repcounter/internal/tray"
)

func newTrayCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tray",
		Short: "Serve with a system tray icon",
		Long:  `Run everything serve does and show the live count in the system tray.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			t := tray.New()
			t.OnQuit(cancel)
			t.OnOpen(func() {
				if err := openBrowser(uiURL(c.cfg.Server.Host, c.cfg.Server.Port)); err != nil {
					logrus.WithError(err).Warn("failed to open browser")
				}
			})

			attach := func(ctx context.Context, a *app.App, g *errgroup.Group) {
				t.OnToggle(a.SetEnabled)
				t.OnRestart(func() {
					if _, err := a.Restart(); err != nil {
						logrus.WithError(err).Error("restart from tray failed")
					}
				})
				updates, unsubscribe := a.Session().Subscribe(16)
				g.Go(func() error {
					defer unsubscribe()
					t.Follow(ctx, updates)
					return nil
				})
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- runServe(ctx, c.cfg, attach)
				t.Quit()
			}()

			// systray needs the main goroutine on macOS. Quit is deferred
			// until the tray is ready when serve fails early.
			t.Run()
			cancel()
			return <-errCh
		},
	}
}

func uiURL(host string, port int) string {
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d/", host, port)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
