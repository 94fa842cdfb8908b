package object

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Kind string

const (
	NONE_OBJ   Kind = "NONE"
	VALUE_OBJ  Kind = "VALUE"
	STRING_OBJ Kind = "STRING"
	LIST_OBJ   Kind = "LIST"
	MAP_OBJ    Kind = "MAP"
)

// Value is the tagged variant exchanged between commands.
// The zero Value is the empty (none) value.
type Value struct {
	kind Kind
	num  int64
	str  string
	list []Value
	dict map[string]Value
}

func None() Value { return Value{} }

func Int(i int64) Value { return Value{kind: VALUE_OBJ, num: i} }

// Bool stores a boolean as the integers 0 and 1.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

func String(s string) Value { return Value{kind: STRING_OBJ, str: s} }

func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: LIST_OBJ, list: items}
}

func Strings(items ...string) Value {
	list := make([]Value, 0, len(items))
	for _, s := range items {
		list = append(list, String(s))
	}
	return List(list...)
}

func NewMap() Value { return Value{kind: MAP_OBJ, dict: make(map[string]Value)} }

func (v Value) Kind() Kind {
	if v.kind == "" {
		return NONE_OBJ
	}
	return v.kind
}

func (v Value) IsNone() bool   { return v.Kind() == NONE_OBJ }
func (v Value) IsValue() bool  { return v.kind == VALUE_OBJ }
func (v Value) IsString() bool { return v.kind == STRING_OBJ }
func (v Value) IsList() bool   { return v.kind == LIST_OBJ }
func (v Value) IsMap() bool    { return v.kind == MAP_OBJ }

func (v Value) AsValue() int64   { return v.num }
func (v Value) AsString() string { return v.str }
func (v Value) AsList() []Value  { return v.list }

// Len is the element count of a list or map, the byte length of a string and
// zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case LIST_OBJ:
		return len(v.list)
	case MAP_OBJ:
		return len(v.dict)
	case STRING_OBJ:
		return len(v.str)
	}
	return 0
}

// Append returns the list with item appended. The receiver must be a list.
func (v Value) Append(item Value) Value {
	return Value{kind: LIST_OBJ, list: append(v.list, item)}
}

func (v Value) Get(key string) (Value, bool) {
	if v.kind != MAP_OBJ {
		return Value{}, false
	}
	item, ok := v.dict[key]
	return item, ok
}

func (v Value) HasKey(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// SetKey mutates the map in place; copies of a map Value share storage.
func (v Value) SetKey(key string, item Value) {
	if v.kind == MAP_OBJ {
		v.dict[key] = item
	}
}

func (v Value) EraseKey(key string) {
	if v.kind == MAP_OBJ {
		delete(v.dict, key)
	}
}

// Keys returns the map keys in ascending order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.dict))
	for k := range v.dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone deep-copies lists and maps.
func (v Value) Clone() Value {
	switch v.kind {
	case LIST_OBJ:
		list := make([]Value, len(v.list))
		for i, item := range v.list {
			list[i] = item.Clone()
		}
		return Value{kind: LIST_OBJ, list: list}
	case MAP_OBJ:
		dict := make(map[string]Value, len(v.dict))
		for k, item := range v.dict {
			dict[k] = item.Clone()
		}
		return Value{kind: MAP_OBJ, dict: dict}
	}
	return v
}

func (v Value) Equal(o Value) bool {
	if v.Kind() != o.Kind() {
		return false
	}
	switch v.Kind() {
	case VALUE_OBJ:
		return v.num == o.num
	case STRING_OBJ:
		return v.str == o.str
	case LIST_OBJ:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case MAP_OBJ:
		if len(v.dict) != len(o.dict) {
			return false
		}
		for k, item := range v.dict {
			other, ok := o.dict[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return true
}

func (v Value) Inspect() string {
	switch v.Kind() {
	case VALUE_OBJ:
		return strconv.FormatInt(v.num, 10)
	case STRING_OBJ:
		return strconv.Quote(v.str)
	case LIST_OBJ:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.Inspect()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case MAP_OBJ:
		keys := v.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", strconv.Quote(k), v.dict[k].Inspect())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

func (v Value) String() string { return v.Inspect() }
