// Package command owns the string-keyed command map, the call adapters and
// the target dispatch of the engine.
package command

import (
	"sort"

	"github.com/funvibe/torrentrpc/internal/object"
)

type Flags uint32

const (
	FlagDontDelete Flags = 1 << iota
	FlagPublic
	FlagModifiable
	FlagDeleteKey
	FlagFileTarget
	FlagTrackerTarget
	FlagNoTarget
)

// Entry is a registered command. Key and Kind never change after insertion.
type Entry struct {
	Key   string
	Kind  TargetKind
	Slot  Slot
	Flags Flags
	Doc   string

	redirect string
}

func (e *Entry) IsRedirect() bool    { return e.redirect != "" }
func (e *Entry) Destination() string { return e.redirect }
func (e *Entry) IsPublic() bool      { return e.Flags&FlagPublic != 0 }

// Signature is the xmlrpc-c style parameter signature of the entry.
func (e *Entry) Signature() string {
	if e.Slot == nil {
		return "i:"
	}
	return signature(e.Slot.Shape())
}

// Registry maps command keys to entries. It is not safe for concurrent use;
// all access happens on the event loop.
type Registry struct {
	entries  map[string]*Entry
	readonly map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]*Entry),
		readonly: make(map[string]struct{}),
	}
}

// Insert registers a command. Entries without FlagPublic are not listed.
func (r *Registry) Insert(key string, slot Slot, kind TargetKind, flags Flags) (*Entry, error) {
	if key == "" {
		return nil, NewInputError("Invalid key.")
	}
	if slot == nil {
		return nil, NewInputError("Command \"%s\" has no callable.", key)
	}
	if _, exists := r.entries[key]; exists {
		return nil, NewInputError("Command \"%s\" already exists.", key)
	}
	e := &Entry{Key: key, Kind: kind, Slot: slot, Flags: flags}
	r.entries[key] = e
	return e, nil
}

// CreateRedirect inserts an alias. Aliases of aliases are collapsed so call
// time resolution is always a single hop.
func (r *Registry) CreateRedirect(from, to string, flags Flags) (*Entry, error) {
	if from == "" || to == "" {
		return nil, NewInputError("Invalid key.")
	}
	if _, exists := r.entries[from]; exists {
		return nil, NewInputError("Command \"%s\" already exists.", from)
	}
	dest, ok := r.entries[to]
	if !ok {
		return nil, NewInputError("Tried to create redirect to a non-existent command \"%s\".", to)
	}
	if dest.IsRedirect() {
		to = dest.redirect
		dest, ok = r.entries[to]
		if !ok {
			return nil, NewInputError("Tried to create redirect to a non-existent command \"%s\".", to)
		}
	}
	e := &Entry{Key: from, Kind: dest.Kind, Flags: flags, redirect: to}
	r.entries[from] = e
	return e, nil
}

func (r *Registry) Find(key string) (*Entry, bool) {
	e, ok := r.entries[key]
	return e, ok
}

func (r *Registry) Has(key string) bool {
	_, ok := r.entries[key]
	return ok
}

// Resolve follows a redirect one hop and returns the entry that is called.
func (r *Registry) Resolve(key string) (*Entry, error) {
	e, ok := r.entries[key]
	if !ok {
		return nil, NewInputError("Command \"%s\" does not exist.", key)
	}
	if !e.IsRedirect() {
		return e, nil
	}
	dest, ok := r.entries[e.redirect]
	if !ok {
		return nil, NewInputError("Command \"%s\" does not exist.", e.redirect)
	}
	return dest, nil
}

// Call dispatches key with the given target and argument. Errors from the
// callable are returned unchanged.
func (r *Registry) Call(key string, target Target, arg object.Value) (object.Value, error) {
	e, err := r.Resolve(key)
	if err != nil {
		return object.None(), err
	}
	return e.Slot.Call(target, arg)
}

func (r *Registry) IsModifiable(e *Entry) bool {
	return e != nil && e.Flags&FlagModifiable != 0 && e.Flags&FlagDontDelete == 0
}

func (r *Registry) Erase(key string) error {
	e, ok := r.entries[key]
	if !ok {
		return NewInputError("Command \"%s\" does not exist.", key)
	}
	if !r.IsModifiable(e) {
		return NewInputError("Command not modifiable.")
	}
	delete(r.entries, key)
	delete(r.readonly, key)
	return nil
}

// Remove deletes a user entry whether or not it is modifiable. Builtins
// are refused.
func (r *Registry) Remove(key string) error {
	e, ok := r.entries[key]
	if !ok {
		return nil
	}
	if e.Flags&FlagDontDelete != 0 {
		return NewInputError("Command not modifiable.")
	}
	delete(r.entries, key)
	delete(r.readonly, key)
	return nil
}

// ClearModifiable pins an entry so it can no longer be erased.
func (r *Registry) ClearModifiable(key string) {
	if e, ok := r.entries[key]; ok {
		e.Flags &^= FlagModifiable
	}
}

// MarkReadonly adds key to the set of commands that restricted RPC callers
// may still invoke.
func (r *Registry) MarkReadonly(key string) {
	r.readonly[key] = struct{}{}
}

func (r *Registry) IsReadonly(key string) bool {
	_, ok := r.readonly[key]
	return ok
}

// List returns the sorted command keys, optionally only the public ones.
func (r *Registry) List(publicOnly bool) []string {
	keys := make([]string, 0, len(r.entries))
	for k, e := range r.entries {
		if publicOnly && !e.IsPublic() {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) Len() int { return len(r.entries) }
