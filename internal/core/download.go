// Package core holds the minimal client-side objects the command engine
// operates on. The engine only borrows pointers to them for a single call.
package core

import "strings"

type Download struct {
	hash     string
	name     string
	started  bool
	active   bool
	Files    []*File
	Trackers []*Tracker
	Peers    []*Peer
}

func NewDownload(hash, name string) *Download {
	return &Download{hash: strings.ToUpper(hash), name: name}
}

func (d *Download) InfoHash() string { return d.hash }
func (d *Download) Name() string     { return d.name }
func (d *Download) IsActive() bool   { return d.active }
func (d *Download) IsStarted() bool  { return d.started }

type Peer struct {
	ID      string
	Address string
}

type Tracker struct {
	URL   string
	Group int
}

type File struct {
	Path      string
	SizeBytes int64
	Priority  int
}

// FileListIterator points at a file or directory entry while walking a
// download's file tree.
type FileListIterator struct {
	Depth int
	File  *File
}
