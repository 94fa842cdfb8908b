package engine

import (
	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/object"
	"github.com/funvibe/torrentrpc/internal/storage"
)

const builtinFlags = command.FlagDontDelete | command.FlagPublic

// insertObject is the one insertion path for storage backed commands, used
// by both the builtin variable builders and method.insert. Every check runs
// before the first mutation since nothing is rolled back.
func (e *Engine) insertObject(key string, value object.Value, flags storage.Flags, cmdFlags command.Flags) error {
	if key == "" || e.store.Has(key) || e.cmds.Has(key) || e.cmds.Has(key+config.SetSuffix) {
		return command.NewInputError("Invalid key.")
	}

	var main command.Slot
	switch flags.Type() {
	case storage.FlagFunctionType, storage.FlagMultiType:
		main = e.functionSlot(key)
	default:
		main = e.getterSlot(key)
	}

	var setter command.Slot
	if flags&storage.FlagConstant == 0 {
		setter = e.setterSlot(key, flags.Type())
	}

	if _, err := e.store.Insert(key, value, flags); err != nil {
		return err
	}
	if _, err := e.cmds.Insert(key, main, command.TargetAny, cmdFlags); err != nil {
		return err
	}
	if setter == nil {
		return nil
	}
	_, err := e.cmds.Insert(key+config.SetSuffix, setter, command.TargetAny, cmdFlags)
	return err
}

func (e *Engine) getterSlot(key string) command.Slot {
	return command.Generic(func(command.Target, object.Value) (object.Value, error) {
		return e.store.Get(key)
	})
}

func (e *Engine) functionSlot(key string) command.Slot {
	return command.Generic(func(t command.Target, args object.Value) (object.Value, error) {
		return e.store.CallFunction(key, t, args, e)
	})
}

// setterSlot returns nil for types that are rebound through method.set or
// method.set_key instead.
func (e *Engine) setterSlot(key string, t storage.Flags) command.Slot {
	switch t {
	case storage.FlagBoolType:
		return command.Scalar(func(_ command.Target, n int64) (object.Value, error) {
			return e.store.SetBool(key, object.Int(n))
		})
	case storage.FlagValueType:
		return command.Scalar(func(_ command.Target, n int64) (object.Value, error) {
			return e.store.SetValue(key, object.Int(n))
		})
	case storage.FlagStringType:
		return command.String(func(_ command.Target, s string) (object.Value, error) {
			return e.store.SetString(key, object.String(s))
		})
	case storage.FlagListType:
		return command.List(func(_ command.Target, items []object.Value) (object.Value, error) {
			return e.store.SetList(key, object.List(items...))
		})
	}
	return nil
}

// VarBool registers a builtin bool variable with its getter and setter.
func (e *Engine) VarBool(key string, value bool) error {
	return e.insertObject(key, object.Bool(value), storage.FlagBoolType, builtinFlags)
}

func (e *Engine) VarValue(key string, value int64, readonly bool) error {
	if err := e.insertObject(key, object.Int(value), storage.FlagValueType, builtinFlags); err != nil {
		return err
	}
	if readonly {
		e.cmds.MarkReadonly(key)
	}
	return nil
}

func (e *Engine) VarString(key, value string) error {
	return e.insertObject(key, object.String(value), storage.FlagStringType, builtinFlags)
}

// VarConstString registers a getter only.
func (e *Engine) VarConstString(key, value string) error {
	if err := e.insertObject(key, object.String(value), storage.FlagStringType|storage.FlagConstant, builtinFlags); err != nil {
		return err
	}
	e.cmds.MarkReadonly(key)
	return nil
}

// VarList registers a list variable with <key>.set and <key>.push_back.
func (e *Engine) VarList(key string) error {
	pushKey := key + ".push_back"
	if e.cmds.Has(pushKey) {
		return command.NewInputError("Invalid key.")
	}
	if err := e.insertObject(key, object.List(), storage.FlagListType, builtinFlags); err != nil {
		return err
	}
	e.cmds.MarkReadonly(key)

	push := command.Void(command.Generic(func(_ command.Target, v object.Value) (object.Value, error) {
		return object.None(), e.store.ListPushBack(key, v)
	}))
	_, err := e.cmds.Insert(pushKey, push, command.TargetAny, builtinFlags)
	return err
}

// FuncSingle registers a builtin that runs a fixed command string.
func (e *Engine) FuncSingle(key, cmd string) error {
	return e.insertObject(key, object.String(cmd), storage.FlagFunctionType|storage.FlagConstant, builtinFlags)
}

// Redirect registers a protected alias.
func (e *Engine) Redirect(from, to string) error {
	_, err := e.cmds.CreateRedirect(from, to, builtinFlags)
	return err
}

func (e *Engine) registerVariables() error {
	if err := e.VarBool("method.use_deprecated", true); err != nil {
		return err
	}
	return e.VarValue("method.use_intermediate", 1, false)
}
