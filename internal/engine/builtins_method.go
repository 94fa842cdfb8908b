package engine

import (
	"strings"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/object"
	"github.com/funvibe/torrentrpc/internal/storage"
)

// MethodBuiltins returns the method.* commands and catch.
func MethodBuiltins(e *Engine) map[string]*Builtin {
	return map[string]*Builtin{
		"method.insert":            {Slot: command.List(e.methodInsert), Doc: "Insert a user method: name, flags, body..."},
		"method.insert.value":      {Slot: e.insertWith(storage.FlagValueType)},
		"method.insert.bool":       {Slot: e.insertWith(storage.FlagBoolType)},
		"method.insert.string":     {Slot: e.insertWith(storage.FlagStringType)},
		"method.insert.list":       {Slot: e.insertWith(storage.FlagListType)},
		"method.insert.simple":     {Slot: e.insertWith(storage.FlagFunctionType)},
		"method.insert.c_simple":   {Slot: e.insertWith(storage.FlagFunctionType | storage.FlagConstant)},
		"method.insert.s_c_simple": {Slot: e.insertWith(storage.FlagFunctionType | storage.FlagConstant | storage.FlagStatic)},

		"method.erase":    {Slot: command.String(e.methodErase)},
		"method.redirect": {Slot: command.List(e.methodRedirect)},
		"method.get":      {Slot: command.String(e.methodGet)},
		"method.set":      {Slot: command.List(e.methodSet)},

		"method.const":        {Slot: command.String(e.methodConst)},
		"method.const.enable": {Slot: command.Void(command.String(e.methodConstEnable))},

		"method.has_key":   {Slot: command.List(e.methodHasKey)},
		"method.set_key":   {Slot: command.List(e.methodSetKey)},
		"method.list_keys": {Slot: command.String(e.methodListKeys)},

		"method.rlookup":       {Slot: command.String(e.methodRlookup)},
		"method.rlookup.clear": {Slot: command.Void(command.String(e.methodRlookupClear))},

		config.CatchCommand: {Slot: command.Generic(e.catch), Readonly: true},
	}
}

var objectFlags = map[string]storage.Flags{
	"multi":  storage.FlagMultiType,
	"simple": storage.FlagFunctionType,
	"value":  storage.FlagValueType,
	"bool":   storage.FlagBoolType,
	"string": storage.FlagStringType,
	"list":   storage.FlagListType,

	"static":  storage.FlagStatic,
	"private": storage.FlagPrivate,
	"const":   storage.FlagConstant,
	"rlookup": storage.FlagRlookup,
}

// ParseObjectFlags parses a pipe separated flag string such as
// "value|private|const". Exactly one type flag must be present.
func ParseObjectFlags(s string) (storage.Flags, error) {
	var flags, typ storage.Flags

	for _, name := range strings.Split(s, "|") {
		f, ok := objectFlags[strings.TrimSpace(name)]
		if !ok {
			return 0, command.NewInputError("Unknown flag \"%s\".", name)
		}
		if f&storage.MaskType == 0 {
			flags |= f
			continue
		}
		if typ != 0 && typ != f {
			return 0, command.NewInputError("Multiple object types specified.")
		}
		typ = f
	}

	if typ == 0 {
		return 0, command.NewInputError("No object type specified.")
	}
	return flags | typ, nil
}

// FormatObjectFlags is the inverse of ParseObjectFlags.
func FormatObjectFlags(f storage.Flags) string {
	parts := []string{}
	for _, name := range []string{"multi", "simple", "value", "bool", "string", "list"} {
		if objectFlags[name] == f.Type() {
			parts = append(parts, name)
		}
	}
	for _, name := range []string{"static", "private", "const", "rlookup"} {
		if f&objectFlags[name] != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// method.insert <name> <flags> <body...>
func (e *Engine) methodInsert(_ command.Target, args []object.Value) (object.Value, error) {
	if len(args) < 2 {
		return object.None(), command.NewInputError("Invalid argument count.")
	}
	key, err := command.ToString(args[0])
	if err != nil {
		return object.None(), err
	}
	if key == "" || e.cmds.Has(key) {
		return object.None(), command.NewInputError("Invalid key.")
	}
	flagStr, err := command.ToString(args[1])
	if err != nil {
		return object.None(), err
	}
	flags, err := ParseObjectFlags(flagStr)
	if err != nil {
		return object.None(), err
	}

	objArgs := []object.Value{object.String(key)}
	switch flags.Type() {
	case storage.FlagFunctionType, storage.FlagMultiType:
		cmd, err := joinCommands(args[2:])
		if err != nil {
			return object.None(), err
		}
		objArgs = append(objArgs, object.String(cmd))
	default:
		objArgs = append(objArgs, args[2:]...)
	}
	return object.None(), e.insertObjectArgs(objArgs, flags)
}

func (e *Engine) insertWith(flags storage.Flags) command.Slot {
	return command.List(func(_ command.Target, args []object.Value) (object.Value, error) {
		return object.None(), e.insertObjectArgs(args, flags)
	})
}

// insertObjectArgs handles {name, initial...} for a fixed set of flags.
func (e *Engine) insertObjectArgs(args []object.Value, flags storage.Flags) error {
	if len(args) == 0 {
		return command.NewInputError("Invalid argument count.")
	}
	key, err := command.ToString(args[0])
	if err != nil {
		return err
	}
	rest := args[1:]

	var value object.Value
	switch flags.Type() {
	case storage.FlagBoolType, storage.FlagValueType:
		var n int64
		if len(rest) > 0 {
			if n, err = command.ToValue(rest[0]); err != nil {
				return err
			}
		}
		value = object.Int(n)
	case storage.FlagStringType:
		var s string
		if len(rest) > 0 {
			if s, err = command.ToString(rest[0]); err != nil {
				return err
			}
		}
		value = object.String(s)
	case storage.FlagFunctionType:
		if value, err = functionPayload(rest); err != nil {
			return err
		}
	case storage.FlagListType:
		switch len(rest) {
		case 0:
			value = object.List()
		case 1:
			value = object.List(command.ToList(rest[0])...)
		default:
			value = object.List(rest...)
		}
	case storage.FlagMultiType:
		value = object.NewMap()
	default:
		return command.NewInputError("Invalid type.")
	}

	return e.insertObject(key, value, flags, userFlags(flags))
}

// userFlags derives the command flags of a user created object.
func userFlags(flags storage.Flags) command.Flags {
	cmdFlags := command.FlagDeleteKey
	if flags&(storage.FlagStatic|storage.FlagConstant) == 0 {
		cmdFlags |= command.FlagModifiable
	}
	if flags&storage.FlagPrivate == 0 {
		cmdFlags |= command.FlagPublic
	}
	return cmdFlags
}

// functionPayload builds the body of a function entry. Strings are joined
// into one command string; a single list or map is stored as is; several
// non-string items become a list run in order.
func functionPayload(items []object.Value) (object.Value, error) {
	if len(items) == 0 {
		return object.String(""), nil
	}
	if items[0].IsString() {
		cmd, err := joinCommands(items)
		if err != nil {
			return object.None(), err
		}
		return object.String(cmd), nil
	}

	for _, item := range items {
		if !item.IsList() && !item.IsMap() && !item.IsString() {
			return object.None(), command.NewInputError("New command of wrong type.")
		}
	}
	if len(items) == 1 {
		return items[0].Clone(), nil
	}
	return object.List(items...).Clone(), nil
}

func joinCommands(items []object.Value) (string, error) {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		s, err := command.ToString(item)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ;"), nil
}

// method.erase <name>. Unknown names are ignored.
func (e *Engine) methodErase(_ command.Target, key string) (object.Value, error) {
	entry, ok := e.cmds.Find(key)
	if !ok {
		return object.None(), nil
	}
	if !e.cmds.IsModifiable(entry) {
		return object.None(), command.NewInputError("Command not modifiable.")
	}
	if err := e.cmds.Erase(key); err != nil {
		return object.None(), err
	}
	if entry.Flags&command.FlagDeleteKey == 0 || entry.IsRedirect() {
		return object.None(), nil
	}

	setKey := key + config.SetSuffix
	if setter, ok := e.cmds.Find(setKey); ok && e.cmds.IsModifiable(setter) {
		if err := e.cmds.Erase(setKey); err != nil {
			return object.None(), err
		}
	}
	if e.store.Has(key) {
		return object.None(), e.store.Erase(key)
	}
	return object.None(), nil
}

// method.redirect <new> <dest>
func (e *Engine) methodRedirect(_ command.Target, args []object.Value) (object.Value, error) {
	if len(args) != 2 {
		return object.None(), command.NewInputError("Invalid argument count.")
	}
	from, err := command.ToString(args[0])
	if err != nil {
		return object.None(), err
	}
	to, err := command.ToString(args[1])
	if err != nil {
		return object.None(), err
	}
	_, err = e.cmds.CreateRedirect(from, to, command.FlagPublic|command.FlagDeleteKey|command.FlagModifiable)
	return object.None(), err
}

func (e *Engine) methodGet(_ command.Target, key string) (object.Value, error) {
	return e.store.Get(key)
}

// method.set <name> <body...>
func (e *Engine) methodSet(_ command.Target, args []object.Value) (object.Value, error) {
	if len(args) == 0 {
		return object.None(), command.NewInputError("Invalid argument count.")
	}
	key, err := command.ToString(args[0])
	if err != nil {
		return object.None(), err
	}
	entry, ok := e.store.Find(key)
	if !ok || entry.Flags&storage.FlagConstant != 0 {
		return object.None(), command.NewInputError("Command is not modifiable.")
	}
	cmd, err := joinCommands(args[1:])
	if err != nil {
		return object.None(), err
	}
	return object.None(), e.store.SetFunction(key, cmd)
}

func (e *Engine) methodConst(_ command.Target, key string) (object.Value, error) {
	ok, err := e.store.HasFlag(key, storage.FlagConstant)
	if err != nil {
		return object.None(), err
	}
	return object.Bool(ok), nil
}

// method.const.enable <name> also drops the setter and pins the command so
// it can no longer be erased. Builtin variables are refused.
func (e *Engine) methodConstEnable(_ command.Target, key string) (object.Value, error) {
	if entry, ok := e.cmds.Find(key); ok && entry.Flags&command.FlagDontDelete != 0 {
		return object.None(), command.NewInputError("Command not modifiable.")
	}
	if err := e.store.EnableFlag(key, storage.FlagConstant); err != nil {
		return object.None(), err
	}
	if err := e.cmds.Remove(key + config.SetSuffix); err != nil {
		return object.None(), err
	}
	e.cmds.ClearModifiable(key)
	return object.None(), nil
}

func multiKeyArgs(args []object.Value) (string, string, error) {
	if len(args) < 2 {
		return "", "", command.NewInputError("Invalid argument count.")
	}
	key, err := command.ToString(args[0])
	if err != nil {
		return "", "", err
	}
	inner, err := command.ToString(args[1])
	if err != nil {
		return "", "", err
	}
	return key, inner, nil
}

func (e *Engine) methodHasKey(_ command.Target, args []object.Value) (object.Value, error) {
	key, inner, err := multiKeyArgs(args)
	if err != nil {
		return object.None(), err
	}
	ok, err := e.store.HasMultiKey(key, inner)
	if err != nil {
		return object.None(), err
	}
	return object.Bool(ok), nil
}

// method.set_key <outer> <inner> [payload...]; no payload erases the key.
func (e *Engine) methodSetKey(_ command.Target, args []object.Value) (object.Value, error) {
	key, inner, err := multiKeyArgs(args)
	if err != nil {
		return object.None(), err
	}
	payload := args[2:]

	switch {
	case len(payload) == 0:
		err = e.store.EraseMultiKey(key, inner)
	case payload[0].IsMap() || payload[0].IsList():
		err = e.store.SetMultiKeyValue(key, inner, payload[0])
	default:
		var cmd string
		if cmd, err = joinCommands(payload); err == nil {
			err = e.store.SetMultiKey(key, inner, cmd)
		}
	}
	return object.None(), err
}

func (e *Engine) methodListKeys(_ command.Target, key string) (object.Value, error) {
	keys, err := e.store.ListKeys(key)
	if err != nil {
		return object.None(), err
	}
	return object.Strings(keys...), nil
}

func (e *Engine) methodRlookup(_ command.Target, inner string) (object.Value, error) {
	return object.Strings(e.store.Rlookup(inner)...), nil
}

func (e *Engine) methodRlookupClear(_ command.Target, inner string) (object.Value, error) {
	e.store.RlookupClear(inner)
	return object.None(), nil
}

// catch evaluates its argument and turns an input error into a warning.
func (e *Engine) catch(t command.Target, arg object.Value) (object.Value, error) {
	v, err := e.callObject(arg, t)
	if err == nil {
		return v, nil
	}
	if !command.IsInputError(err) {
		return object.None(), err
	}
	log.Warnf("Caught exception: '%s'.", err)
	return object.None(), nil
}
