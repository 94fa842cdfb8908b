package command

import (
	"strconv"
	"strings"

	"github.com/funvibe/torrentrpc/internal/object"
)

// ToValue coerces an argument to a 64-bit integer.
func ToValue(v object.Value) (int64, error) {
	switch v.Kind() {
	case object.VALUE_OBJ:
		return v.AsValue(), nil
	case object.STRING_OBJ:
		return parseValue(v.AsString())
	case object.LIST_OBJ:
		if v.Len() == 1 {
			return ToValue(v.AsList()[0])
		}
	}
	return 0, NewInputError("Not convertible to a value.")
}

func parseValue(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewInputError("Not convertible to a value.")
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, NewInputError("Not convertible to a value: %q.", s)
	}
	return n, nil
}

// ToString coerces an argument to text.
func ToString(v object.Value) (string, error) {
	switch v.Kind() {
	case object.NONE_OBJ:
		return "", nil
	case object.STRING_OBJ:
		return v.AsString(), nil
	case object.VALUE_OBJ:
		return strconv.FormatInt(v.AsValue(), 10), nil
	case object.LIST_OBJ:
		if v.Len() == 1 {
			return ToString(v.AsList()[0])
		}
	}
	return "", NewInputError("Not convertible to a string.")
}

// ToList treats none as an empty list and any scalar as a one-element list.
func ToList(v object.Value) []object.Value {
	switch v.Kind() {
	case object.NONE_OBJ:
		return []object.Value{}
	case object.LIST_OBJ:
		return v.AsList()
	}
	return []object.Value{v}
}
