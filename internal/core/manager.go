package core

import (
	"strings"
)

const (
	ViewActive  = "active"
	ViewStarted = "started"
)

// View is an ordered, filtered collection of downloads.
type View interface {
	Name() string
	SizeVisible() int
	Visible() []*Download
}

// Controller pauses and resumes downloads.
type Controller interface {
	Pause(d *Download)
	Resume(d *Download)
}

// Manager is an in-memory download list with the "active" and "started"
// views. Downloads keep insertion order.
type Manager struct {
	downloads []*Download
	views     map[string]*filterView
}

func NewManager() *Manager {
	m := &Manager{}
	m.views = map[string]*filterView{
		ViewActive:  {name: ViewActive, m: m, filter: (*Download).IsActive},
		ViewStarted: {name: ViewStarted, m: m, filter: (*Download).IsStarted},
	}
	return m
}

// Add inserts a download in the started-but-queued state.
func (m *Manager) Add(d *Download) {
	d.started = true
	m.downloads = append(m.downloads, d)
}

func (m *Manager) Remove(d *Download) {
	for i, item := range m.downloads {
		if item == d {
			m.downloads = append(m.downloads[:i], m.downloads[i+1:]...)
			return
		}
	}
}

func (m *Manager) Find(hash string) *Download {
	hash = strings.ToUpper(hash)
	for _, d := range m.downloads {
		if d.hash == hash {
			return d
		}
	}
	return nil
}

func (m *Manager) Downloads() []*Download {
	return append([]*Download(nil), m.downloads...)
}

func (m *Manager) View(name string) (View, bool) {
	v, ok := m.views[name]
	return v, ok
}

func (m *Manager) Pause(d *Download) {
	if d != nil {
		d.active = false
	}
}

func (m *Manager) Resume(d *Download) {
	if d != nil {
		d.active = true
	}
}

type filterView struct {
	name   string
	m      *Manager
	filter func(*Download) bool
}

func (v *filterView) Name() string { return v.name }

func (v *filterView) SizeVisible() int {
	n := 0
	for _, d := range v.m.downloads {
		if v.filter(d) {
			n++
		}
	}
	return n
}

func (v *filterView) Visible() []*Download {
	var out []*Download
	for _, d := range v.m.downloads {
		if v.filter(d) {
			out = append(out, d)
		}
	}
	return out
}
