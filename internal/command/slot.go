package command

import (
	"github.com/funvibe/torrentrpc/internal/core"
	"github.com/funvibe/torrentrpc/internal/object"
)

type Shape int

const (
	ShapeGeneric Shape = iota
	ShapeScalar
	ShapeString
	ShapeList
)

// Slot is a native operation adapted to the uniform calling convention
// (target, argument) -> Value. The shape decides how the argument is coerced.
type Slot interface {
	Shape() Shape
	Call(t Target, arg object.Value) (object.Value, error)
}

// Generic receives the raw argument.
type Generic func(t Target, arg object.Value) (object.Value, error)

func (f Generic) Shape() Shape { return ShapeGeneric }
func (f Generic) Call(t Target, arg object.Value) (object.Value, error) {
	return f(t, arg)
}

// Scalar receives the argument coerced to an int64.
type Scalar func(t Target, arg int64) (object.Value, error)

func (f Scalar) Shape() Shape { return ShapeScalar }
func (f Scalar) Call(t Target, arg object.Value) (object.Value, error) {
	n, err := ToValue(arg)
	if err != nil {
		return object.None(), err
	}
	return f(t, n)
}

// String receives the argument coerced to text.
type String func(t Target, arg string) (object.Value, error)

func (f String) Shape() Shape { return ShapeString }
func (f String) Call(t Target, arg object.Value) (object.Value, error) {
	s, err := ToString(arg)
	if err != nil {
		return object.None(), err
	}
	return f(t, s)
}

// List receives the argument as an ordered sequence.
type List func(t Target, args []object.Value) (object.Value, error)

func (f List) Shape() Shape { return ShapeList }
func (f List) Call(t Target, arg object.Value) (object.Value, error) {
	return f(t, ToList(arg))
}

type voidSlot struct {
	Slot
}

func (v voidSlot) Call(t Target, arg object.Value) (object.Value, error) {
	if _, err := v.Slot.Call(t, arg); err != nil {
		return object.None(), err
	}
	return object.None(), nil
}

// Void discards the native result and yields the empty value.
func Void(s Slot) Slot {
	return voidSlot{Slot: s}
}

func OnDownload(fn func(d *core.Download, arg object.Value) (object.Value, error)) Generic {
	return func(t Target, arg object.Value) (object.Value, error) {
		d := t.Download()
		if d == nil {
			return object.None(), NewInputError("Command requires a download target.")
		}
		return fn(d, arg)
	}
}

func OnPeer(fn func(p *core.Peer, arg object.Value) (object.Value, error)) Generic {
	return func(t Target, arg object.Value) (object.Value, error) {
		p := t.Peer()
		if p == nil {
			return object.None(), NewInputError("Command requires a peer target.")
		}
		return fn(p, arg)
	}
}

func OnTracker(fn func(tr *core.Tracker, arg object.Value) (object.Value, error)) Generic {
	return func(t Target, arg object.Value) (object.Value, error) {
		tr := t.Tracker()
		if tr == nil {
			return object.None(), NewInputError("Command requires a tracker target.")
		}
		return fn(tr, arg)
	}
}

func OnFile(fn func(f *core.File, arg object.Value) (object.Value, error)) Generic {
	return func(t Target, arg object.Value) (object.Value, error) {
		f := t.File()
		if f == nil {
			return object.None(), NewInputError("Command requires a file target.")
		}
		return fn(f, arg)
	}
}

func OnFileItr(fn func(it *core.FileListIterator, arg object.Value) (object.Value, error)) Generic {
	return func(t Target, arg object.Value) (object.Value, error) {
		it := t.FileItr()
		if it == nil {
			return object.None(), NewInputError("Command requires a file iterator target.")
		}
		return fn(it, arg)
	}
}

// signature mirrors the xmlrpc-c style "return:params" strings.
func signature(s Shape) string {
	switch s {
	case ShapeScalar:
		return "i:i"
	case ShapeString:
		return "i:s"
	case ShapeList:
		return "i:A"
	}
	return "i:"
}
