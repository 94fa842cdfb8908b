package storage

import (
	"sort"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/object"
)

func (s *Storage) multi(key string) (*Entry, error) {
	e, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	if e.Flags.Type() != FlagMultiType {
		return nil, command.NewInputError("Key \"%s\" is not a multi command.", key)
	}
	return e, nil
}

func (s *Storage) HasMultiKey(key, inner string) (bool, error) {
	e, err := s.multi(key)
	if err != nil {
		return false, err
	}
	return e.Value.HasKey(inner), nil
}

// SetMultiKey stores inner as an evaluable command string.
func (s *Storage) SetMultiKey(key, inner, cmd string) error {
	return s.SetMultiKeyValue(key, inner, object.String(cmd))
}

// SetMultiKeyValue stores inner as a literal payload.
func (s *Storage) SetMultiKeyValue(key, inner string, payload object.Value) error {
	e, err := s.writable(key, FlagMultiType)
	if err != nil {
		return err
	}
	if inner == "" {
		return command.NewInputError("Invalid multi key.")
	}
	e.Value.SetKey(inner, payload.Clone())
	if e.Flags&FlagRlookup != 0 {
		s.index(inner, key)
	}
	return nil
}

func (s *Storage) EraseMultiKey(key, inner string) error {
	e, err := s.writable(key, FlagMultiType)
	if err != nil {
		return err
	}
	e.Value.EraseKey(inner)
	if e.Flags&FlagRlookup != 0 {
		s.unindex(inner, key)
	}
	return nil
}

// ListKeys returns the inner keys of a multi entry in ascending order.
func (s *Storage) ListKeys(key string) ([]string, error) {
	e, err := s.multi(key)
	if err != nil {
		return nil, err
	}
	return e.Value.Keys(), nil
}

// Rlookup returns the outer keys whose multi map currently holds inner.
func (s *Storage) Rlookup(inner string) []string {
	outers := s.rlookup[inner]
	out := make([]string, 0, len(outers))
	for k := range outers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RlookupClear erases inner from every indexed multi map and drops it from
// the index.
func (s *Storage) RlookupClear(inner string) {
	for outer := range s.rlookup[inner] {
		if e, ok := s.entries[outer]; ok {
			e.Value.EraseKey(inner)
		}
	}
	delete(s.rlookup, inner)
}

func (s *Storage) index(inner, outer string) {
	set, ok := s.rlookup[inner]
	if !ok {
		set = make(map[string]struct{})
		s.rlookup[inner] = set
	}
	set[outer] = struct{}{}
}

func (s *Storage) unindex(inner, outer string) {
	set, ok := s.rlookup[inner]
	if !ok {
		return
	}
	delete(set, outer)
	if len(set) == 0 {
		delete(s.rlookup, inner)
	}
}
