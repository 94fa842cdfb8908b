package command

import (
	"github.com/funvibe/torrentrpc/internal/core"
)

type TargetKind int

// These match the call type ordering used by the RPC bridge. TargetNone
// commands take no target at all; TargetAny commands accept whatever target
// the caller supplies.
const (
	TargetNone TargetKind = iota
	TargetAny
	TargetDownload
	TargetPeer
	TargetTracker
	TargetFile
	TargetFileItr
)

func (k TargetKind) String() string {
	switch k {
	case TargetAny:
		return "any"
	case TargetDownload:
		return "download"
	case TargetPeer:
		return "peer"
	case TargetTracker:
		return "tracker"
	case TargetFile:
		return "file"
	case TargetFileItr:
		return "file-iterator"
	}
	return "none"
}

// Target is a borrowed receiver pointer, valid only for one call.
type Target struct {
	kind TargetKind
	ptr  interface{}
}

func NoTarget() Target { return Target{} }

func DownloadTarget(d *core.Download) Target {
	if d == nil {
		return Target{}
	}
	return Target{kind: TargetDownload, ptr: d}
}

func PeerTarget(p *core.Peer) Target {
	if p == nil {
		return Target{}
	}
	return Target{kind: TargetPeer, ptr: p}
}

func TrackerTarget(t *core.Tracker) Target {
	if t == nil {
		return Target{}
	}
	return Target{kind: TargetTracker, ptr: t}
}

func FileTarget(f *core.File) Target {
	if f == nil {
		return Target{}
	}
	return Target{kind: TargetFile, ptr: f}
}

func FileItrTarget(it *core.FileListIterator) Target {
	if it == nil {
		return Target{}
	}
	return Target{kind: TargetFileItr, ptr: it}
}

func (t Target) Kind() TargetKind { return t.kind }
func (t Target) IsNone() bool     { return t.kind == TargetNone }

// Accepts reports whether a command registered for kind k can be called with
// this target.
func (t Target) Accepts(k TargetKind) bool {
	switch k {
	case TargetNone, TargetAny:
		return true
	}
	return t.kind == k
}

func (t Target) Download() *core.Download {
	d, _ := t.ptr.(*core.Download)
	return d
}

func (t Target) Peer() *core.Peer {
	p, _ := t.ptr.(*core.Peer)
	return p
}

func (t Target) Tracker() *core.Tracker {
	tr, _ := t.ptr.(*core.Tracker)
	return tr
}

func (t Target) File() *core.File {
	f, _ := t.ptr.(*core.File)
	return f
}

func (t Target) FileItr() *core.FileListIterator {
	it, _ := t.ptr.(*core.FileListIterator)
	return it
}
