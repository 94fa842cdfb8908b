// Package rpc translates external requests into engine calls. XML-RPC is the
// native protocol; JSON-RPC 2.0 and a gRPC service share the same dispatch,
// target resolution and fault codes.
package rpc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/core"
	"github.com/funvibe/torrentrpc/internal/engine"
	"github.com/funvibe/torrentrpc/internal/object"
)

var log = logging.Logger("rpc")

// Fault codes shared by every transport.
const (
	FaultInternal      = -500
	FaultInput         = -501
	FaultParse         = -503
	FaultUnknownMethod = -506
	FaultPermission    = -507
	FaultSizeLimit     = -509
)

// Fault is an error reply.
type Fault struct {
	Code int
	Msg  string
}

func (f *Fault) Error() string { return fmt.Sprintf("fault %d: %s", f.Code, f.Msg) }

func faultf(code int, format string, a ...interface{}) *Fault {
	return &Fault{Code: code, Msg: fmt.Sprintf(format, a...)}
}

// toFault converts a dispatch error. Restricted calls become -507, input
// errors -501 and anything else is reported as internal.
func toFault(err error) *Fault {
	if f, ok := err.(*Fault); ok {
		return f
	}
	if engine.IsRestrictedError(err) {
		return &Fault{Code: FaultPermission, Msg: err.Error()}
	}
	if command.IsInputError(err) {
		return &Fault{Code: FaultInput, Msg: err.Error()}
	}
	return &Fault{Code: FaultInternal, Msg: err.Error()}
}

type Dialect int

const (
	DialectGeneric Dialect = iota
	DialectI8
	DialectApache
)

func (d Dialect) String() string {
	switch d {
	case DialectGeneric:
		return config.DialectGeneric
	case DialectApache:
		return config.DialectApache
	}
	return config.DialectI8
}

// ParseDialect accepts a dialect name or its number.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case config.DialectGeneric, "0":
		return DialectGeneric, nil
	case config.DialectI8, "1", "":
		return DialectI8, nil
	case config.DialectApache, "2":
		return DialectApache, nil
	}
	return DialectI8, command.NewInputError("Unsupported XML-RPC dialect \"%s\".", s)
}

// Observer is told about every dispatched call; faultCode is 0 on success.
type Observer interface {
	ObserveCall(transport, method string, faultCode int, elapsed time.Duration)
}

// Bridge dispatches external requests to the engine. Like the engine it is
// not safe for concurrent use.
type Bridge struct {
	engine *engine.Engine

	dialect   Dialect
	sizeLimit int64
	readonly  bool

	Observer Observer

	// Target finders; nil finders reject the matching target form.
	FindDownload func(hash string) *core.Download
	FindFile     func(d *core.Download, index int) *core.File
	FindTracker  func(d *core.Download, index int) *core.Tracker
	FindPeer     func(d *core.Download, id string) *core.Peer
}

// NewBridge registers the network.xmlrpc.* commands on e.
func NewBridge(e *engine.Engine) (*Bridge, error) {
	b := &Bridge{
		engine:    e,
		dialect:   DialectI8,
		sizeLimit: config.DefaultSizeLimit,
	}

	err := e.RegisterBuiltins(map[string]*Builtin{
		"network.xmlrpc.size_limit": {
			Slot: command.Generic(func(command.Target, object.Value) (object.Value, error) {
				return object.Int(b.SizeLimit()), nil
			}),
			Readonly: true,
		},
		"network.xmlrpc.size_limit.set": {
			Slot: command.Void(command.Scalar(func(_ command.Target, n int64) (object.Value, error) {
				if n < 0 {
					return object.None(), command.NewInputError("Invalid XMLRPC size limit.")
				}
				return object.None(), b.SetSizeLimit(uint64(n))
			})),
		},
		"network.xmlrpc.dialect.set": {
			Slot: command.Void(command.String(func(_ command.Target, s string) (object.Value, error) {
				d, err := ParseDialect(s)
				if err != nil {
					return object.None(), err
				}
				b.SetDialect(d)
				return object.None(), nil
			})),
		},
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Builtin is re-exported so callers can build tables without importing the
// engine package for the type name.
type Builtin = engine.Builtin

func (b *Bridge) Dialect() Dialect     { return b.dialect }
func (b *Bridge) SetDialect(d Dialect) { b.dialect = d }

func (b *Bridge) SizeLimit() int64 { return b.sizeLimit }

// SetSizeLimit rejects zero and anything above config.MaxSizeLimit.
func (b *Bridge) SetSizeLimit(size uint64) error {
	if size == 0 || size > config.MaxSizeLimit {
		return command.NewInputError("Invalid XMLRPC size limit.")
	}
	b.sizeLimit = int64(size)
	log.Infof("xmlrpc size limit set to %s", humanize.IBytes(size))
	return nil
}

// SetReadonly restricts callers to commands marked readonly.
func (b *Bridge) SetReadonly(on bool) { b.readonly = on }

// UseManager wires the finders to an in-memory download list. Peers are
// matched on their hex encoded id.
func (b *Bridge) UseManager(m *core.Manager) {
	b.FindDownload = m.Find
	b.FindFile = func(d *core.Download, i int) *core.File {
		if i < 0 || i >= len(d.Files) {
			return nil
		}
		return d.Files[i]
	}
	b.FindTracker = func(d *core.Download, i int) *core.Tracker {
		if i < 0 || i >= len(d.Trackers) {
			return nil
		}
		return d.Trackers[i]
	}
	b.FindPeer = func(d *core.Download, id string) *core.Peer {
		for _, p := range d.Peers {
			if strings.EqualFold(p.ID, id) {
				return p
			}
		}
		return nil
	}
}

// Call dispatches method with raw protocol params. Unless the command takes
// no target, a leading string param is the target.
func (b *Bridge) Call(transport, method string, params []object.Value) (object.Value, error) {
	if method == config.MulticallCommand {
		return b.multicall(transport, params)
	}
	return b.dispatch(transport, method, "", params, true)
}

// CallTarget is Call with the target given out of band.
func (b *Bridge) CallTarget(transport, method, target string, params []object.Value) (object.Value, error) {
	if method == config.MulticallCommand {
		return b.multicall(transport, params)
	}
	return b.dispatch(transport, method, target, params, false)
}

func (b *Bridge) dispatch(transport, method, targetStr string, params []object.Value, targetInParams bool) (result object.Value, err error) {
	start := time.Now()
	defer func() {
		if b.Observer == nil {
			return
		}
		code := 0
		if err != nil {
			code = toFault(err).Code
		}
		b.Observer.ObserveCall(transport, method, code, time.Since(start))
	}()

	entry, ok := b.engine.Commands().Find(method)
	if !ok || !entry.IsPublic() {
		return object.None(), faultf(FaultUnknownMethod, "Method '%s' not defined", method)
	}
	if b.readonly && !b.engine.Commands().IsReadonly(method) {
		return object.None(), faultf(FaultPermission, "Permission denied: '%s' is not a readonly command", method)
	}
	resolved, err := b.engine.Commands().Resolve(method)
	if err != nil {
		return object.None(), toFault(err)
	}

	target := command.NoTarget()
	if resolved.Kind != command.TargetNone && entry.Flags&command.FlagNoTarget == 0 {
		if targetInParams && len(params) > 0 && params[0].IsString() {
			targetStr = params[0].AsString()
			params = params[1:]
		}
		if target, err = b.resolveTarget(targetStr); err != nil {
			return object.None(), toFault(err)
		}
	}

	call := b.engine.Call
	if b.readonly {
		call = b.engine.CallRestricted
	}
	result, err = call(method, target, engine.PackArgs(params))
	if err != nil {
		return object.None(), toFault(err)
	}
	return result, nil
}

// resolveTarget parses "", "<hash>", "<hash>:f<i>", "<hash>:t<i>" and
// "<hash>:p<peer id hex>".
func (b *Bridge) resolveTarget(s string) (command.Target, error) {
	if s == "" {
		return command.NoTarget(), nil
	}

	hash, rest, hasSub := strings.Cut(s, ":")
	if b.FindDownload == nil {
		return command.NoTarget(), command.NewInputError("Could not find info-hash.")
	}
	d := b.FindDownload(hash)
	if d == nil {
		return command.NoTarget(), command.NewInputError("Could not find info-hash.")
	}
	if !hasSub {
		return command.DownloadTarget(d), nil
	}
	if rest == "" {
		return command.NoTarget(), command.NewInputError("Invalid target.")
	}

	kind, arg := rest[0], rest[1:]
	switch kind {
	case 'f', 't':
		index, err := strconv.Atoi(arg)
		if err != nil {
			return command.NoTarget(), command.NewInputError("Invalid index.")
		}
		if kind == 'f' {
			if b.FindFile != nil {
				if f := b.FindFile(d, index); f != nil {
					return command.FileTarget(f), nil
				}
			}
			return command.NoTarget(), command.NewInputError("Invalid file index.")
		}
		if b.FindTracker != nil {
			if tr := b.FindTracker(d, index); tr != nil {
				return command.TrackerTarget(tr), nil
			}
		}
		return command.NoTarget(), command.NewInputError("Invalid tracker index.")
	case 'p':
		if b.FindPeer != nil {
			if p := b.FindPeer(d, arg); p != nil {
				return command.PeerTarget(p), nil
			}
		}
		return command.NoTarget(), command.NewInputError("Could not find peer.")
	}
	return command.NoTarget(), command.NewInputError("Invalid target.")
}

// multicall runs {methodName, params} structs in order. Each success is
// wrapped in a one element list; each failure becomes a fault struct.
func (b *Bridge) multicall(transport string, params []object.Value) (object.Value, error) {
	if len(params) != 1 || !params[0].IsList() {
		return object.None(), faultf(FaultInput, "system.multicall expects an array of calls")
	}

	results := make([]object.Value, 0, params[0].Len())
	for _, call := range params[0].AsList() {
		v, err := b.multicallOne(transport, call)
		if err != nil {
			f := toFault(err)
			fault := object.NewMap()
			fault.SetKey("faultCode", object.Int(int64(f.Code)))
			fault.SetKey("faultString", object.String(f.Msg))
			results = append(results, fault)
			continue
		}
		results = append(results, object.List(v))
	}
	return object.List(results...), nil
}

func (b *Bridge) multicallOne(transport string, call object.Value) (object.Value, error) {
	name, ok := call.Get("methodName")
	if !ok || !name.IsString() {
		return object.None(), faultf(FaultInput, "Missing methodName")
	}
	if name.AsString() == config.MulticallCommand {
		return object.None(), faultf(FaultInput, "Recursive system.multicall forbidden")
	}
	var params []object.Value
	if p, ok := call.Get("params"); ok {
		params = command.ToList(p)
	}
	return b.dispatch(transport, name.AsString(), "", params, true)
}
