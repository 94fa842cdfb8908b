package engine

import (
	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/object"
	"github.com/funvibe/torrentrpc/internal/storage"
)

// Method is a user created command as saved between sessions: either a
// storage backed object or a redirect.
type Method struct {
	Key      string
	Flags    storage.Flags
	Value    object.Value
	Redirect string
}

func (m Method) IsRedirect() bool { return m.Redirect != "" }

// UserMethods lists the commands created at runtime. Objects come first so
// that restoring in order never creates a redirect before its destination.
func (e *Engine) UserMethods() []Method {
	var objects, redirects []Method

	for _, key := range e.cmds.List(false) {
		entry, _ := e.cmds.Find(key)
		if entry.Flags&command.FlagDontDelete != 0 {
			continue
		}
		if entry.IsRedirect() {
			redirects = append(redirects, Method{Key: key, Redirect: entry.Destination()})
			continue
		}
		if obj, ok := e.store.Find(key); ok {
			objects = append(objects, Method{Key: key, Flags: obj.Flags, Value: obj.Value.Clone()})
		}
	}
	return append(objects, redirects...)
}

// RestoreMethod recreates a method returned by UserMethods.
func (e *Engine) RestoreMethod(m Method) error {
	if m.IsRedirect() {
		_, err := e.cmds.CreateRedirect(m.Key, m.Redirect, command.FlagPublic|command.FlagDeleteKey|command.FlagModifiable)
		return err
	}
	return e.insertObject(m.Key, m.Value, m.Flags, userFlags(m.Flags))
}
