package engine

import (
	"bytes"
	"testing"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/object"
	"github.com/funvibe/torrentrpc/internal/storage"
)

func mustEval(t *testing.T, e *Engine, src string) object.Value {
	t.Helper()
	v, err := e.Eval(src, command.NoTarget())
	if err != nil {
		t.Fatalf("Eval(%q): %v", src, err)
	}
	return v
}

func TestValueScenario(t *testing.T) {
	e := New()

	mustEval(t, e, "method.insert.value=foo,42")
	if v := mustEval(t, e, "foo="); v.AsValue() != 42 {
		t.Fatalf("foo = %s, want 42", v)
	}
	mustEval(t, e, "foo.set=7")
	if v := mustEval(t, e, "method.get=foo"); v.AsValue() != 7 {
		t.Fatalf("method.get=foo = %s, want 7", v)
	}

	mustEval(t, e, "method.const.enable=foo")
	if _, err := e.Eval("foo.set=7", command.NoTarget()); !command.IsInputError(err) {
		t.Errorf("foo.set after const enable error = %v", err)
	}
	if e.Commands().Has("foo.set") {
		t.Error("foo.set still registered for a constant entry")
	}
	if v := mustEval(t, e, "method.const=foo"); v.AsValue() != 1 {
		t.Errorf("method.const=foo = %s", v)
	}
	if _, err := e.Eval("method.erase=foo", command.NoTarget()); !command.IsInputError(err) {
		t.Errorf("erasing a constant entry error = %v", err)
	}
}

func TestSimpleMethodReadsValue(t *testing.T) {
	e := New()
	mustEval(t, e, "method.insert.value=foo,3")
	mustEval(t, e, "method.insert.simple=bar,foo")

	if v := mustEval(t, e, "bar="); v.AsValue() != 3 {
		t.Fatalf("bar = %s, want 3", v)
	}
	mustEval(t, e, "foo.set=11")
	if v := mustEval(t, e, "bar="); v.AsValue() != 11 {
		t.Errorf("bar after set = %s, want 11", v)
	}
}

func TestMethodInsert(t *testing.T) {
	tests := []struct {
		src     string
		key     string
		want    object.Value
		hasSet  bool
		wantErr bool
	}{
		{src: "method.insert=v,value,5", key: "v", want: object.Int(5), hasSet: true},
		{src: "method.insert=v,value", key: "v", want: object.Int(0), hasSet: true},
		{src: "method.insert=b,bool,9", key: "b", want: object.Int(1), hasSet: true},
		{src: "method.insert=s,string,hello", key: "s", want: object.String("hello"), hasSet: true},
		{src: "method.insert=l,list,{a,b}", key: "l", want: object.Strings("a", "b"), hasSet: true},
		{src: "method.insert=c,value|const,5", key: "c", want: object.Int(5), hasSet: false},
		{src: "method.insert=p,string|private,x", key: "p", want: object.String("x"), hasSet: true},
		{src: "method.insert=m,multi", key: "m", want: object.NewMap(), hasSet: false},
		{src: "method.insert=v,valu,5", key: "v", wantErr: true},
		{src: "method.insert=v,const", key: "v", wantErr: true},
		{src: "method.insert=v,value|string", key: "v", wantErr: true},
		{src: "method.insert=v", key: "v", wantErr: true},
		{src: "method.insert=,value", key: "", wantErr: true},
		{src: "method.insert=method.insert,value", key: "method.insert", wantErr: true},
		{src: "method.insert.value=v,abc", key: "v", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e := New()
			before := e.Commands().Len()
			_, err := e.Eval(tt.src, command.NoTarget())
			if tt.wantErr {
				if !command.IsInputError(err) {
					t.Fatalf("error = %v, want input error", err)
				}
				if tt.key != "method.insert" && e.Storage().Has(tt.key) {
					t.Error("failed insert left a storage entry")
				}
				if e.Commands().Len() != before {
					t.Error("failed insert changed the registry")
				}
				return
			}
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}

			got, err := e.Storage().Get(tt.key)
			if err != nil || !got.Equal(tt.want) {
				t.Errorf("stored %s, %v; want %s", got, err, tt.want)
			}
			if e.Commands().Has(tt.key+".set") != tt.hasSet {
				t.Errorf("has %s.set = %v, want %v", tt.key, !tt.hasSet, tt.hasSet)
			}
		})
	}
}

func TestPrivateMethodIsHidden(t *testing.T) {
	e := New()
	mustEval(t, e, "method.insert=hidden,value|private,1")

	listed := mustEval(t, e, "system.listMethods=")
	for _, item := range listed.AsList() {
		if item.AsString() == "hidden" {
			t.Fatal("private method listed")
		}
	}
	if v := mustEval(t, e, "hidden="); v.AsValue() != 1 {
		t.Errorf("hidden = %s", v)
	}
}

func TestEraseProtection(t *testing.T) {
	e := New()
	mustEval(t, e, "method.insert.value=user,1")
	mustEval(t, e, "method.insert.s_c_simple=pinned,print=")

	tests := []struct {
		name    string
		wantErr bool
	}{
		{"method.insert", true},
		{"system.listMethods", true},
		{"method.use_deprecated", true},
		{"pinned", true},
		{"user", false},
		{"does.not.exist", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Call("method.erase", command.NoTarget(), object.String(tt.name))
			if (err != nil) != tt.wantErr {
				t.Errorf("method.erase=%s error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}

	if e.Commands().Has("user") || e.Commands().Has("user.set") || e.Storage().Has("user") {
		t.Error("erase left parts of the user method behind")
	}
	if !e.Commands().Has("method.insert") {
		t.Error("builtin erased")
	}

	// The name is free again.
	mustEval(t, e, "method.insert.string=user,again")
}

func TestRedirectMatchesDestination(t *testing.T) {
	e := New()
	mustEval(t, e, "method.insert.value=target,5")
	mustEval(t, e, "method.redirect=alias,target.set")

	for _, arg := range []object.Value{object.Int(9), object.String("12"), object.String("x")} {
		want, wantErr := e.Call("target.set", command.NoTarget(), arg)
		got, err := e.Call("alias", command.NoTarget(), arg)
		if (err == nil) != (wantErr == nil) || !got.Equal(want) {
			t.Errorf("alias(%s) = %s, %v; target.set = %s, %v", arg, got, err, want, wantErr)
		}
	}

	mustEval(t, e, "method.erase=alias")
	if e.Commands().Has("alias") {
		t.Error("alias still present")
	}
	if !e.Storage().Has("target") {
		t.Error("erasing a redirect removed the destination storage")
	}
}

func TestMultiAndRlookup(t *testing.T) {
	e := New()
	var out bytes.Buffer
	e.Out = &out

	mustEval(t, e, "method.insert=event.a,multi|rlookup")
	mustEval(t, e, "method.insert=event.b,multi|rlookup")
	mustEval(t, e, `method.set_key=event.a,h1,"print=a1"`)
	mustEval(t, e, `method.set_key=event.a,h0,"print=a0"`)
	mustEval(t, e, `method.set_key=event.b,h1,"print=b1"`)

	if v := mustEval(t, e, "method.has_key=event.a,h1"); v.AsValue() != 1 {
		t.Error("method.has_key=event.a,h1 = false")
	}
	if v := mustEval(t, e, "method.list_keys=event.a"); !v.Equal(object.Strings("h0", "h1")) {
		t.Errorf("list_keys = %s", v)
	}
	if v := mustEval(t, e, "method.rlookup=h1"); !v.Equal(object.Strings("event.a", "event.b")) {
		t.Errorf("rlookup = %s", v)
	}

	mustEval(t, e, "event.a=")
	if out.String() != "a0\na1\n" {
		t.Errorf("multi call output = %q", out.String())
	}

	mustEval(t, e, "method.rlookup.clear=h1")
	if v := mustEval(t, e, "method.rlookup=h1"); v.Len() != 0 {
		t.Errorf("rlookup after clear = %s", v)
	}
	if v := mustEval(t, e, "method.has_key=event.b,h1"); v.AsValue() != 0 {
		t.Error("clear left h1 in event.b")
	}

	mustEval(t, e, "method.set_key=event.a,h0")
	if v := mustEval(t, e, "method.list_keys=event.a"); v.Len() != 0 {
		t.Errorf("set_key without payload did not erase: %s", v)
	}
}

func TestBodyStopsAtFirstError(t *testing.T) {
	e := New()
	mustEval(t, e, "method.insert.value=v")
	mustEval(t, e, `method.insert=f,simple,"v.set=1","bad.command=","v.set=2"`)

	if _, err := e.Eval("f=", command.NoTarget()); !command.IsInputError(err) {
		t.Fatalf("f= error = %v", err)
	}
	if v := mustEval(t, e, "v="); v.AsValue() != 1 {
		t.Errorf("v = %s, want 1", v)
	}
}

func TestMethodSet(t *testing.T) {
	e := New()
	mustEval(t, e, "method.insert.simple=f,\"method.use_intermediate=\"")
	mustEval(t, e, `method.set=f,"system.api_version="`)
	if v := mustEval(t, e, "f="); v.AsValue() != 10 {
		t.Errorf("f after method.set = %s", v)
	}

	mustEval(t, e, "method.insert.c_simple=cf,print=")
	if _, err := e.Eval(`method.set=cf,"print="`, command.NoTarget()); !command.IsInputError(err) {
		t.Errorf("method.set on constant error = %v", err)
	}
	if _, err := e.Eval(`method.set=nope,"print="`, command.NoTarget()); !command.IsInputError(err) {
		t.Errorf("method.set on unknown error = %v", err)
	}
}

func TestCatch(t *testing.T) {
	e := New()
	if v, err := e.Eval(`catch="no.such.command="`, command.NoTarget()); err != nil || !v.IsNone() {
		t.Errorf("catch = %s, %v", v, err)
	}
	if v := mustEval(t, e, `catch="method.use_intermediate="`); v.AsValue() != 1 {
		t.Errorf("catch passthrough = %s", v)
	}
}

func TestConstEnableSetters(t *testing.T) {
	e := New()

	if _, err := e.Eval("method.const.enable=method.use_intermediate", command.NoTarget()); !command.IsInputError(err) {
		t.Fatalf("const enable on a builtin error = %v", err)
	}
	if v := mustEval(t, e, "method.const=method.use_intermediate"); v.AsValue() != 0 {
		t.Errorf("builtin became constant: %s", v)
	}
	mustEval(t, e, "method.use_intermediate.set=2")

	mustEval(t, e, "method.insert=sv,value|static,3")
	if !e.Commands().Has("sv.set") {
		t.Fatal("static value has no setter")
	}
	mustEval(t, e, "method.const.enable=sv")
	if e.Commands().Has("sv.set") {
		t.Error("sv.set still registered for a constant entry")
	}
	if v := mustEval(t, e, "sv="); v.AsValue() != 3 {
		t.Errorf("sv = %s", v)
	}
}

func TestCallRestricted(t *testing.T) {
	e := New()
	mustEval(t, e, `method.insert=grow,simple,"method.insert.value=x,1"`)

	_, err := e.CallRestricted("catch", command.NoTarget(), object.String("grow="))
	if !IsRestrictedError(err) {
		t.Fatalf("restricted catch error = %v", err)
	}
	if e.Storage().Has("x") {
		t.Fatal("restricted call created x")
	}
	if _, err := e.CallRestricted("method.insert.value", command.NoTarget(), object.List(object.String("y"), object.Int(1))); !IsRestrictedError(err) {
		t.Fatalf("restricted method.insert.value error = %v", err)
	}

	mustEval(t, e, "catch=grow=")
	if !e.Storage().Has("x") {
		t.Fatal("unrestricted call did not create x")
	}
}

func TestArguments(t *testing.T) {
	e := New()
	var out bytes.Buffer
	e.Out = &out

	mustEval(t, e, `method.insert.simple=greet,"print=$argument.0=,$argument.1="`)
	mustEval(t, e, "greet=hello,world")
	mustEval(t, e, "greet=solo")
	if out.String() != "helloworld\nsolo\n" {
		t.Errorf("output = %q", out.String())
	}

	if _, err := e.Eval("argument.0=", command.NoTarget()); !command.IsInputError(err) {
		t.Errorf("argument.0 outside a call error = %v", err)
	}
}

func TestRecursionLimit(t *testing.T) {
	e := New()
	mustEval(t, e, "method.insert.simple=loop,loop=")
	if _, err := e.Eval("loop=", command.NoTarget()); !command.IsInputError(err) {
		t.Errorf("recursive call error = %v", err)
	}
	if e.Depth() != 0 {
		t.Errorf("call stack not unwound: %d", e.Depth())
	}
}

func TestParseObjectFlags(t *testing.T) {
	tests := []struct {
		input   string
		want    storage.Flags
		wantErr bool
	}{
		{"value", storage.FlagValueType, false},
		{"simple|const|static", storage.FlagFunctionType | storage.FlagConstant | storage.FlagStatic, false},
		{"multi|rlookup|private", storage.FlagMultiType | storage.FlagRlookup | storage.FlagPrivate, false},
		{"private", 0, true},
		{"value|bogus", 0, true},
		{"bool|list", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseObjectFlags(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseObjectFlags(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseObjectFlags(%q) = %#x, want %#x", tt.input, got, tt.want)
		}
		if !tt.wantErr {
			back, _ := ParseObjectFlags(FormatObjectFlags(got))
			if back != got {
				t.Errorf("FormatObjectFlags(%#x) does not parse back", got)
			}
		}
	}
}

func TestBuilders(t *testing.T) {
	e := New()
	if err := e.VarList("session.dirs"); err != nil {
		t.Fatalf("VarList: %v", err)
	}
	mustEval(t, e, "session.dirs.push_back=a")
	mustEval(t, e, "session.dirs.push_back=b")
	if v := mustEval(t, e, "session.dirs="); !v.Equal(object.Strings("a", "b")) {
		t.Errorf("session.dirs = %s", v)
	}
	if !e.Commands().IsReadonly("session.dirs") {
		t.Error("list getter not readonly")
	}

	if err := e.VarConstString("session.name", "main"); err != nil {
		t.Fatalf("VarConstString: %v", err)
	}
	if e.Commands().Has("session.name.set") {
		t.Error("constant string got a setter")
	}
	if err := e.VarValue("session.name", 1, false); err == nil {
		t.Error("duplicate builder key accepted")
	}

	if err := e.Redirect("session.dirs.get", "session.dirs"); err != nil {
		t.Fatalf("Redirect: %v", err)
	}
	if _, err := e.Call("method.erase", command.NoTarget(), object.String("session.dirs.get")); err == nil {
		t.Error("builtin redirect erased")
	}

	if err := e.FuncSingle("session.hello", "method.use_intermediate="); err != nil {
		t.Fatalf("FuncSingle: %v", err)
	}
	if v := mustEval(t, e, "session.hello="); v.AsValue() != 1 {
		t.Errorf("session.hello = %s", v)
	}
}

func TestUserMethodsRoundTrip(t *testing.T) {
	src := New()
	mustEval(t, src, "method.insert.value=count,4")
	mustEval(t, src, "method.insert=ev,multi|rlookup")
	mustEval(t, src, `method.set_key=ev,k,"count.set=5"`)
	mustEval(t, src, "method.insert.c_simple=fixed,count=")
	mustEval(t, src, "method.redirect=count.alias,count")

	methods := src.UserMethods()
	if len(methods) != 4 || !methods[len(methods)-1].IsRedirect() {
		t.Fatalf("UserMethods = %+v", methods)
	}

	dst := New()
	for _, m := range methods {
		if err := dst.RestoreMethod(m); err != nil {
			t.Fatalf("RestoreMethod(%s): %v", m.Key, err)
		}
	}
	if v := mustEval(t, dst, "count.alias="); v.AsValue() != 4 {
		t.Errorf("count.alias = %s", v)
	}
	if v := mustEval(t, dst, "method.rlookup=k"); !v.Equal(object.Strings("ev")) {
		t.Errorf("rlookup after restore = %s", v)
	}
	mustEval(t, dst, "ev=")
	if v := mustEval(t, dst, "fixed="); v.AsValue() != 5 {
		t.Errorf("fixed = %s", v)
	}
	if dst.Commands().Has("fixed.set") {
		t.Error("restored constant got a setter")
	}
}
