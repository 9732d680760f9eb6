// Package narrate announces phase changes and repetition counts out loud.
package narrate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/repcounter/internal/plugin"
	"github.com/ayusman/repcounter/internal/rep"
)

// Announcement is one thing to say.
type Announcement struct {
	Event    rep.EventKind
	Phase    rep.Phase
	RepCount int
	Text     string
}

// Speaker turns announcements into sound.
type Speaker interface {
	Speak(ctx context.Context, a Announcement) error
}

// Phrase returns the announcement for an update, if it warrants one.
// Seeding and skipped samples are silent. A completed rep announces the
// phase change and the new count together.
func Phrase(u rep.Update) (Announcement, bool) {
	if u.Event == nil {
		return Announcement{}, false
	}

	a := Announcement{Event: u.Event.Kind, Phase: u.Event.To, RepCount: u.Event.RepCount}
	switch u.Event.Kind {
	case rep.EventEnteredDown:
		a.Text = "down"
	case rep.EventRepCompleted:
		a.Text = "up, " + strconv.Itoa(u.Event.RepCount)
	case rep.EventReset:
		a.Text = "restarting"
		a.RepCount = 0
	default:
		return Announcement{}, false
	}
	return a, true
}

// Narrator consumes session updates and speaks each announcement once.
type Narrator struct {
	speaker Speaker
	muted   atomic.Bool
	spoken  atomic.Int64
	failed  atomic.Int64
}

// New creates an unmuted narrator that speaks through speaker.
func New(speaker Speaker) *Narrator {
	return &Narrator{speaker: speaker}
}

// SetMuted silences the narrator without unsubscribing it.
func (n *Narrator) SetMuted(muted bool) {
	n.muted.Store(muted)
}

// Muted reports whether announcements are being dropped.
func (n *Narrator) Muted() bool {
	return n.muted.Load()
}

// Spoken returns how many announcements were delivered successfully.
func (n *Narrator) Spoken() int {
	return int(n.spoken.Load())
}

// Failed returns how many announcements the speaker rejected.
func (n *Narrator) Failed() int {
	return int(n.failed.Load())
}

// Run speaks announcements until ctx is done or updates is closed. Speaker
// errors are logged and do not stop the loop.
func (n *Narrator) Run(ctx context.Context, updates <-chan rep.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			n.handle(ctx, u)
		}
	}
}

func (n *Narrator) handle(ctx context.Context, u rep.Update) {
	a, ok := Phrase(u)
	if !ok || n.muted.Load() {
		return
	}

	if err := n.speaker.Speak(ctx, a); err != nil {
		n.failed.Add(1)
		if !errors.Is(err, context.Canceled) {
			logrus.WithError(err).WithField("text", a.Text).Warn("narration failed")
		}
		return
	}
	n.spoken.Add(1)
}

// PluginSpeaker speaks through an external plugin that handles the speak action.
type PluginSpeaker struct {
	manager  *plugin.Manager
	executor *plugin.Executor
	name     string
}

// NewPluginSpeaker uses the plugin called name, or any plugin declaring the
// speak action when name is empty or missing.
func NewPluginSpeaker(manager *plugin.Manager, executor *plugin.Executor, name string) *PluginSpeaker {
	return &PluginSpeaker{manager: manager, executor: executor, name: name}
}

func (s *PluginSpeaker) resolve() (*plugin.Plugin, error) {
	if s.name != "" {
		if p, err := s.manager.Get(s.name); err == nil {
			return p, nil
		}
	}
	return s.manager.FindByAction(plugin.ActionSpeak)
}

// Speak sends a to the plugin and fails when it reports no success.
func (s *PluginSpeaker) Speak(ctx context.Context, a Announcement) error {
	p, err := s.resolve()
	if err != nil {
		return err
	}

	resp, err := s.executor.Execute(ctx, p, &plugin.Request{
		Action:   plugin.ActionSpeak,
		Event:    string(a.Event),
		Phase:    string(a.Phase),
		RepCount: a.RepCount,
		Text:     a.Text,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("plugin %s: %s", p.Manifest.Name, resp.Error)
	}
	return nil
}
