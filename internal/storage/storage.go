// Package storage implements the object storage: named typed variables and
// nested multi-key maps backing user defined methods.
package storage

import (
	"sort"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/object"
)

type Flags uint32

// The type occupies the low nibble and is exclusive; modifiers are bits.
const (
	FlagBoolType     Flags = 0x2
	FlagValueType    Flags = 0x3
	FlagStringType   Flags = 0x4
	FlagListType     Flags = 0x5
	FlagFunctionType Flags = 0x6
	FlagMultiType    Flags = 0x7
	MaskType         Flags = 0xf

	FlagConstant Flags = 0x10
	FlagStatic   Flags = 0x20
	FlagPrivate  Flags = 0x40
	FlagRlookup  Flags = 0x80

	MaskModifiers = FlagConstant | FlagStatic | FlagPrivate | FlagRlookup
)

func (f Flags) Type() Flags { return f & MaskType }

func (f Flags) String() string {
	switch f.Type() {
	case FlagBoolType:
		return "bool"
	case FlagValueType:
		return "value"
	case FlagStringType:
		return "string"
	case FlagListType:
		return "list"
	case FlagFunctionType:
		return "simple"
	case FlagMultiType:
		return "multi"
	}
	return "invalid"
}

type Entry struct {
	Value object.Value
	Flags Flags
}

// Evaluator runs a stored payload: a command string, a list of payloads or a
// literal value.
type Evaluator interface {
	CallObject(payload object.Value, target command.Target, args object.Value) (object.Value, error)
}

// Storage is a single instance per engine. Not safe for concurrent use.
type Storage struct {
	entries map[string]*Entry
	// inner key -> outer keys whose multi map holds it
	rlookup map[string]map[string]struct{}
}

func New() *Storage {
	return &Storage{
		entries: make(map[string]*Entry),
		rlookup: make(map[string]map[string]struct{}),
	}
}

func validType(t Flags) bool {
	return t >= FlagBoolType && t <= FlagMultiType
}

// Insert adds a new entry. The caller is responsible for checking command
// name collisions; storage only rejects its own duplicates.
func (s *Storage) Insert(key string, value object.Value, flags Flags) (*Entry, error) {
	if key == "" {
		return nil, command.NewInputError("Invalid key.")
	}
	if _, exists := s.entries[key]; exists {
		return nil, command.NewInputError("Key \"%s\" already exists in object storage.", key)
	}
	if !validType(flags.Type()) {
		return nil, command.NewInputError("Invalid type.")
	}

	if value.IsNone() && (flags.Type() == FlagBoolType || flags.Type() == FlagValueType) {
		value = object.Int(0)
	}

	switch flags.Type() {
	case FlagBoolType:
		n, err := command.ToValue(value)
		if err != nil {
			return nil, err
		}
		value = object.Bool(n != 0)
	case FlagValueType:
		n, err := command.ToValue(value)
		if err != nil {
			return nil, err
		}
		value = object.Int(n)
	case FlagStringType:
		str, err := command.ToString(value)
		if err != nil {
			return nil, err
		}
		value = object.String(str)
	case FlagListType:
		value = object.List(command.ToList(value.Clone())...)
	case FlagMultiType:
		if !value.IsMap() {
			value = object.NewMap()
		} else {
			value = value.Clone()
		}
	}

	e := &Entry{Value: value, Flags: flags}
	s.entries[key] = e

	if flags.Type() == FlagMultiType && flags&FlagRlookup != 0 {
		for _, inner := range value.Keys() {
			s.index(inner, key)
		}
	}
	return e, nil
}

func (s *Storage) Find(key string) (*Entry, bool) {
	e, ok := s.entries[key]
	return e, ok
}

func (s *Storage) Has(key string) bool {
	_, ok := s.entries[key]
	return ok
}

func (s *Storage) lookup(key string) (*Entry, error) {
	e, ok := s.entries[key]
	if !ok {
		return nil, command.NewInputError("Key \"%s\" not found in object storage.", key)
	}
	return e, nil
}

func (s *Storage) writable(key string, t Flags) (*Entry, error) {
	e, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	if e.Flags&FlagConstant != 0 {
		return nil, command.NewInputError("Object is constant.")
	}
	if e.Flags.Type() != t {
		return nil, command.NewInputError("Object is not of type %s.", t)
	}
	return e, nil
}

// Get returns a copy of the current value.
func (s *Storage) Get(key string) (object.Value, error) {
	e, err := s.lookup(key)
	if err != nil {
		return object.None(), err
	}
	return e.Value.Clone(), nil
}

func (s *Storage) SetBool(key string, v object.Value) (object.Value, error) {
	e, err := s.writable(key, FlagBoolType)
	if err != nil {
		return object.None(), err
	}
	n, err := command.ToValue(v)
	if err != nil {
		return object.None(), err
	}
	e.Value = object.Bool(n != 0)
	return e.Value, nil
}

func (s *Storage) SetValue(key string, v object.Value) (object.Value, error) {
	e, err := s.writable(key, FlagValueType)
	if err != nil {
		return object.None(), err
	}
	n, err := command.ToValue(v)
	if err != nil {
		return object.None(), err
	}
	e.Value = object.Int(n)
	return e.Value, nil
}

func (s *Storage) SetString(key string, v object.Value) (object.Value, error) {
	e, err := s.writable(key, FlagStringType)
	if err != nil {
		return object.None(), err
	}
	str, err := command.ToString(v)
	if err != nil {
		return object.None(), err
	}
	e.Value = object.String(str)
	return e.Value, nil
}

func (s *Storage) SetList(key string, v object.Value) (object.Value, error) {
	e, err := s.writable(key, FlagListType)
	if err != nil {
		return object.None(), err
	}
	e.Value = object.List(command.ToList(v.Clone())...)
	return e.Value.Clone(), nil
}

// ListPushBack appends to a list entry.
func (s *Storage) ListPushBack(key string, v object.Value) error {
	e, err := s.writable(key, FlagListType)
	if err != nil {
		return err
	}
	e.Value = e.Value.Append(v.Clone())
	return nil
}

// MultiFunctionKey holds the command of a multi entry rebound by
// SetFunction.
const MultiFunctionKey = "default"

// SetFunction rebinds the command string of a function entry. A multi
// entry loses its subkeys and keeps cmd under MultiFunctionKey.
func (s *Storage) SetFunction(key string, cmd string) error {
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	if e.Flags&FlagConstant != 0 {
		return command.NewInputError("Object is constant.")
	}

	switch e.Flags.Type() {
	case FlagFunctionType:
		e.Value = object.String(cmd)
		return nil
	case FlagMultiType:
		for _, inner := range e.Value.Keys() {
			e.Value.EraseKey(inner)
			if e.Flags&FlagRlookup != 0 {
				s.unindex(inner, key)
			}
		}
		e.Value.SetKey(MultiFunctionKey, object.String(cmd))
		if e.Flags&FlagRlookup != 0 {
			s.index(MultiFunctionKey, key)
		}
		return nil
	}
	return command.NewInputError("Key \"%s\" is not a function or multi command.", key)
}

func (s *Storage) HasFlag(key string, flag Flags) (bool, error) {
	e, err := s.lookup(key)
	if err != nil {
		return false, err
	}
	return e.Flags&flag != 0, nil
}

// EnableFlag sets a modifier; the type nibble cannot be changed.
func (s *Storage) EnableFlag(key string, flag Flags) error {
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	if flag&MaskType != 0 {
		return command.NewInputError("Cannot change the object type.")
	}
	if flag&FlagRlookup != 0 && e.Flags&FlagRlookup == 0 && e.Flags.Type() == FlagMultiType {
		for _, inner := range e.Value.Keys() {
			s.index(inner, key)
		}
	}
	e.Flags |= flag & MaskModifiers
	return nil
}

// Erase removes an entry and its reverse index references. Static entries
// live for the whole process.
func (s *Storage) Erase(key string) error {
	e, err := s.lookup(key)
	if err != nil {
		return err
	}
	if e.Flags&FlagStatic != 0 {
		return command.NewInputError("Object is static.")
	}
	if e.Flags.Type() == FlagMultiType && e.Flags&FlagRlookup != 0 {
		for _, inner := range e.Value.Keys() {
			s.unindex(inner, key)
		}
	}
	delete(s.entries, key)
	return nil
}

// Record is a snapshot of one entry.
type Record struct {
	Key   string
	Value object.Value
	Flags Flags
}

// Records returns all entries sorted by key, optionally skipping private ones.
func (s *Storage) Records(publicOnly bool) []Record {
	keys := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if publicOnly && e.Flags&FlagPrivate != 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		e := s.entries[k]
		out = append(out, Record{Key: k, Value: e.Value.Clone(), Flags: e.Flags})
	}
	return out
}

// CallFunction evaluates a function entry's payload, or every subkey of a
// multi entry in key order.
func (s *Storage) CallFunction(key string, target command.Target, args object.Value, eval Evaluator) (object.Value, error) {
	e, err := s.lookup(key)
	if err != nil {
		return object.None(), err
	}

	switch e.Flags.Type() {
	case FlagFunctionType:
		return eval.CallObject(e.Value, target, args)
	case FlagMultiType:
		m := e.Value
		for _, inner := range m.Keys() {
			payload, ok := m.Get(inner)
			if !ok {
				continue
			}
			if _, err := eval.CallObject(payload, target, args); err != nil {
				return object.None(), err
			}
		}
		return object.None(), nil
	}
	return object.None(), command.NewInputError("Key \"%s\" is not a function.", key)
}
