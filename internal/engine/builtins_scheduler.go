package engine

import (
	"math"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/core"
	"github.com/funvibe/torrentrpc/internal/object"
)

// Views looks up the download views the scheduler works on.
type Views interface {
	View(name string) (core.View, bool)
}

// scheduler is a simple admission control built only from engine calls. It
// keeps the "active" view at scheduler.max_active downloads by resuming
// from "started" and pausing from the front of "active".
type scheduler struct {
	e     *Engine
	views Views
	ctl   core.Controller
}

// InstallScheduler registers scheduler.max_active and scheduler.simple.*.
func (e *Engine) InstallScheduler(views Views, ctl core.Controller) error {
	s := &scheduler{e: e, views: views, ctl: ctl}

	if err := e.VarValue(config.MaxActiveCommand, -1, false); err != nil {
		return err
	}
	return e.RegisterBuiltins(map[string]*Builtin{
		"scheduler.simple.added": {
			Slot: command.OnDownload(s.added),
			Kind: command.TargetDownload,
		},
		"scheduler.simple.removed": {
			Slot: command.OnDownload(s.removed),
			Kind: command.TargetDownload,
		},
		"scheduler.simple.update": {
			Slot: command.Generic(s.update),
		},
	})
}

// maxActive reads scheduler.max_active through the registry so redirects
// and user overrides apply. A negative value means unlimited.
func (s *scheduler) maxActive() (int, error) {
	v, err := s.e.Call(config.MaxActiveCommand, command.NoTarget(), object.None())
	if err != nil {
		return 0, err
	}
	n, err := command.ToValue(v)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	return int(n), nil
}

func (s *scheduler) view(name string) (core.View, error) {
	v, ok := s.views.View(name)
	if !ok {
		return nil, command.NewInputError("Could not find view: %s", name)
	}
	return v, nil
}

func (s *scheduler) prepare() (active, started core.View, limit int, err error) {
	if active, err = s.view(core.ViewActive); err != nil {
		return
	}
	if started, err = s.view(core.ViewStarted); err != nil {
		return
	}
	limit, err = s.maxActive()
	return
}

// added resumes d only while there is spare capacity.
func (s *scheduler) added(d *core.Download, _ object.Value) (object.Value, error) {
	active, _, limit, err := s.prepare()
	if err != nil {
		return object.None(), err
	}
	if active.SizeVisible() < limit {
		s.ctl.Resume(d)
	}
	return object.None(), nil
}

// removed pauses d and refills the freed capacity from "started" in order.
func (s *scheduler) removed(d *core.Download, _ object.Value) (object.Value, error) {
	active, started, limit, err := s.prepare()
	if err != nil {
		return object.None(), err
	}
	s.ctl.Pause(d)
	s.fill(active, started, limit, d)
	return object.None(), nil
}

// update trims "active" down to max_active or fills it up from "started".
func (s *scheduler) update(command.Target, object.Value) (object.Value, error) {
	active, started, limit, err := s.prepare()
	if err != nil {
		return object.None(), err
	}

	switch {
	case active.SizeVisible() < limit:
		s.fill(active, started, limit, nil)
	case active.SizeVisible() > limit:
		for excess := active.SizeVisible() - limit; excess > 0; excess-- {
			visible := active.Visible()
			if len(visible) == 0 {
				break
			}
			s.ctl.Pause(visible[0])
		}
	}
	return object.None(), nil
}

// fill resumes inactive downloads of "started" in view order, never skip.
func (s *scheduler) fill(active, started core.View, limit int, skip *core.Download) {
	n := active.SizeVisible()
	for _, d := range started.Visible() {
		if n >= limit {
			return
		}
		if d == skip || d.IsActive() {
			continue
		}
		s.ctl.Resume(d)
		n++
	}
}
