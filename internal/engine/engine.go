// Package engine ties the command registry and the object storage together.
// It evaluates command strings, implements the dynamic method commands and
// registers the builtin command set.
package engine

import (
	"errors"
	"fmt"
	"io"
	"sort"

	logging "github.com/ipfs/go-log/v2"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/object"
	"github.com/funvibe/torrentrpc/internal/parser"
	"github.com/funvibe/torrentrpc/internal/storage"
)

var log = logging.Logger("engine")

// Builtin describes a native command in a registration table.
type Builtin struct {
	Slot command.Slot
	// Kind defaults to TargetAny unless NoTarget is set.
	Kind     command.TargetKind
	NoTarget bool
	// Readonly commands stay callable for restricted RPC clients.
	Readonly bool
	// Private commands are callable but not listed.
	Private bool
	Doc     string
}

// CallFrame is one level of user method invocation; argument.N reads it.
type CallFrame struct {
	Args []object.Value
}

// Engine owns the command registry and the object storage. All methods must
// be called from a single goroutine.
type Engine struct {
	// Out receives the output of the print command. Nil means log only.
	Out     io.Writer
	Version string

	cmds  *command.Registry
	store *storage.Storage

	stack []CallFrame

	restricted bool
}

// RestrictedError is returned when a restricted call reaches a command that
// is not readonly. It is not an input error, so catch does not swallow it.
type RestrictedError struct {
	Key string
}

func (e *RestrictedError) Error() string {
	return fmt.Sprintf("Permission denied: '%s' is not a readonly command", e.Key)
}

func IsRestrictedError(err error) bool {
	var re *RestrictedError
	return errors.As(err, &re)
}

func New() *Engine {
	e := &Engine{
		Version: config.Version,
		cmds:    command.NewRegistry(),
		store:   storage.New(),
	}

	tables := []map[string]*Builtin{
		MethodBuiltins(e),
		SystemBuiltins(e),
		StringsBuiltins(),
	}
	for _, table := range tables {
		if err := e.RegisterBuiltins(table); err != nil {
			// The builtin tables are static; a collision is a programming error.
			panic(err)
		}
	}
	if err := e.registerVariables(); err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Commands() *command.Registry { return e.cmds }
func (e *Engine) Storage() *storage.Storage   { return e.store }

// RegisterBuiltins inserts a table of native commands in key order. Every
// key is checked before the first insertion.
func (e *Engine) RegisterBuiltins(table map[string]*Builtin) error {
	keys := make([]string, 0, len(table))
	for key := range table {
		if e.cmds.Has(key) {
			return command.NewInputError("Command \"%s\" already exists.", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := e.define(key, table[key]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) define(key string, b *Builtin) error {
	flags := command.FlagDontDelete
	if !b.Private {
		flags |= command.FlagPublic
	}
	kind := b.Kind
	switch {
	case b.NoTarget:
		kind = command.TargetNone
		flags |= command.FlagNoTarget
	case kind == command.TargetNone:
		kind = command.TargetAny
	}
	entry, err := e.cmds.Insert(key, b.Slot, kind, flags)
	if err != nil {
		return err
	}
	entry.Doc = b.Doc
	if b.Readonly {
		e.cmds.MarkReadonly(key)
	}
	return nil
}

// Call dispatches a single command.
func (e *Engine) Call(key string, target command.Target, arg object.Value) (object.Value, error) {
	if e.restricted && !e.cmds.IsReadonly(key) {
		return object.None(), &RestrictedError{Key: key}
	}
	entry, err := e.cmds.Resolve(key)
	if err != nil {
		return object.None(), err
	}
	if !target.Accepts(entry.Kind) {
		return object.None(), command.NewInputError("Command \"%s\" requires a %s target.", key, entry.Kind)
	}
	return entry.Slot.Call(target, arg)
}

// CallRestricted is Call with every command reached from key, including
// those evaluated by catch or user methods, limited to readonly keys.
func (e *Engine) CallRestricted(key string, target command.Target, arg object.Value) (object.Value, error) {
	prev := e.restricted
	e.restricted = true
	defer func() { e.restricted = prev }()
	return e.Call(key, target, arg)
}

// Eval parses and runs a command string. Statements run in order and the
// first failure aborts the rest; the result is that of the last statement.
func (e *Engine) Eval(src string, target command.Target) (object.Value, error) {
	script, err := parser.Parse(src)
	if err != nil {
		return object.None(), err
	}
	return e.Run(script, target)
}

func (e *Engine) Run(script parser.Script, target command.Target) (object.Value, error) {
	result := object.None()
	for _, call := range script {
		v, err := e.evalCall(call, target)
		if err != nil {
			return object.None(), err
		}
		result = v
	}
	return result, nil
}

func (e *Engine) evalCall(call *parser.Call, target command.Target) (object.Value, error) {
	args := make([]object.Value, 0, len(call.Args))
	for _, node := range call.Args {
		v, err := e.evalNode(node, target)
		if err != nil {
			return object.None(), err
		}
		args = append(args, v)
	}
	return e.Call(call.Name, target, PackArgs(args))
}

func (e *Engine) evalNode(node parser.Node, target command.Target) (object.Value, error) {
	switch n := node.(type) {
	case *parser.Literal:
		return n.Value, nil
	case *parser.ListNode:
		items := make([]object.Value, 0, len(n.Items))
		for _, item := range n.Items {
			v, err := e.evalNode(item, target)
			if err != nil {
				return object.None(), err
			}
			items = append(items, v)
		}
		return object.List(items...), nil
	case *parser.Call:
		return e.evalCall(n, target)
	}
	return object.None(), command.NewInputError("Unknown expression %T.", node)
}

// PackArgs gives commands none for no argument, the argument itself for one
// and a list otherwise.
func PackArgs(args []object.Value) object.Value {
	switch len(args) {
	case 0:
		return object.None()
	case 1:
		return args[0]
	}
	return object.List(args...)
}

// CallObject runs a stored payload. Strings are command strings, lists run
// each element in order and return the last result, anything else is
// returned as is. The call arguments are visible through argument.N.
func (e *Engine) CallObject(payload object.Value, target command.Target, args object.Value) (object.Value, error) {
	if len(e.stack) >= config.MaxCallDepth {
		return object.None(), command.NewInputError("Maximum call depth of %d exceeded.", config.MaxCallDepth)
	}
	e.stack = append(e.stack, CallFrame{Args: command.ToList(args)})
	defer func() { e.stack = e.stack[:len(e.stack)-1] }()

	return e.callObject(payload, target)
}

func (e *Engine) callObject(payload object.Value, target command.Target) (object.Value, error) {
	switch payload.Kind() {
	case object.STRING_OBJ:
		return e.Eval(payload.AsString(), target)
	case object.LIST_OBJ:
		result := object.None()
		for _, item := range payload.AsList() {
			v, err := e.callObject(item, target)
			if err != nil {
				return object.None(), err
			}
			result = v
		}
		return result, nil
	}
	return payload, nil
}

// Argument returns argument i of the innermost user method call.
func (e *Engine) Argument(i int) (object.Value, error) {
	if len(e.stack) == 0 {
		return object.None(), command.NewInputError("Not inside a method call.")
	}
	args := e.stack[len(e.stack)-1].Args
	if i < 0 || i >= len(args) {
		return object.None(), nil
	}
	return args[i], nil
}

// Depth is the current user method nesting level.
func (e *Engine) Depth() int { return len(e.stack) }
