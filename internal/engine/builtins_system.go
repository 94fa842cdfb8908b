package engine

import (
	"fmt"
	"strings"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/object"
)

// SystemBuiltins returns introspection commands, print and argument.N.
func SystemBuiltins(e *Engine) map[string]*Builtin {
	table := map[string]*Builtin{
		"system.listMethods": {
			Slot:     command.Generic(e.listMethods),
			Readonly: true,
			Doc:      "List the public commands.",
		},
		"system.methodExist": {
			Slot:     command.String(e.methodExist),
			Readonly: true,
		},
		"system.methodHelp": {
			Slot:     command.String(e.methodHelp),
			Readonly: true,
		},
		"system.methodSignature": {
			Slot:     command.String(e.methodSignature),
			Readonly: true,
		},
		"system.client_version": {
			Slot: command.Generic(func(command.Target, object.Value) (object.Value, error) {
				return object.String(e.Version), nil
			}),
			Readonly: true,
		},
		"system.api_version": {
			Slot: command.Generic(func(command.Target, object.Value) (object.Value, error) {
				return object.Int(config.APIVersion), nil
			}),
			Readonly: true,
		},
		config.PrintCommand: {
			Slot: command.Void(command.List(e.print)),
			Doc:  "Print the arguments to the log.",
		},
	}

	for i := 0; i < 4; i++ {
		i := i
		table[fmt.Sprintf("argument.%d", i)] = &Builtin{
			Slot: command.Generic(func(command.Target, object.Value) (object.Value, error) {
				return e.Argument(i)
			}),
			Readonly: true,
		}
	}
	return table
}

func (e *Engine) listMethods(command.Target, object.Value) (object.Value, error) {
	return object.Strings(e.cmds.List(true)...), nil
}

func (e *Engine) methodExist(_ command.Target, key string) (object.Value, error) {
	return object.Bool(e.cmds.Has(key)), nil
}

func (e *Engine) methodHelp(_ command.Target, key string) (object.Value, error) {
	entry, err := e.cmds.Resolve(key)
	if err != nil {
		return object.None(), err
	}
	return object.String(entry.Doc), nil
}

func (e *Engine) methodSignature(_ command.Target, key string) (object.Value, error) {
	entry, err := e.cmds.Resolve(key)
	if err != nil {
		return object.None(), err
	}
	parts := strings.FieldsFunc(entry.Signature(), func(r rune) bool { return r == ':' })
	return object.List(object.Strings(parts...)), nil
}

func (e *Engine) print(_ command.Target, args []object.Value) (object.Value, error) {
	var out strings.Builder
	for _, arg := range args {
		if s, err := command.ToString(arg); err == nil {
			out.WriteString(s)
		} else {
			out.WriteString(arg.Inspect())
		}
	}

	log.Infof("%s", out.String())
	if e.Out != nil {
		fmt.Fprintln(e.Out, out.String())
	}
	return object.None(), nil
}

// StringsBuiltins returns the strings.* enumerations of option names.
func StringsBuiltins() map[string]*Builtin {
	lists := map[string][]string{
		"strings.choke_heuristics":          {"upload_leech", "upload_leech_experiment", "upload_seed", "download_leech"},
		"strings.choke_heuristics.upload":   {"upload_leech", "upload_leech_experiment", "upload_seed"},
		"strings.choke_heuristics.download": {"download_leech"},
		"strings.connection_type":           {"leech", "seed", "initial_seed", "metadata"},
		"strings.encryption": {"none", "allow_incoming", "try_outgoing", "require", "require_RC4",
			"enable_retry", "prefer_plaintext"},
		"strings.ip_filter":     {"unwanted", "preferred"},
		"strings.ip_tos":        {"default", "lowdelay", "throughput", "reliability", "mincost"},
		"strings.log_group":     {"critical", "error", "warn", "notice", "info", "debug"},
		"strings.tracker_event": {"updated", "completed", "started", "stopped", "scrape"},
		"strings.tracker_mode":  {"normal", "aggressive"},
	}

	table := make(map[string]*Builtin, len(lists))
	for key, names := range lists {
		names := names
		table[key] = &Builtin{
			Slot: command.Generic(func(command.Target, object.Value) (object.Value, error) {
				return object.Strings(names...), nil
			}),
			Readonly: true,
		}
	}
	return table
}
