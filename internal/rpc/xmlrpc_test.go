package rpc

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/object"
)

func xmlCall(method string, params ...string) []byte {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?><methodCall><methodName>`)
	sb.WriteString(method)
	sb.WriteString(`</methodName><params>`)
	for _, p := range params {
		sb.WriteString("<param><value>" + p + "</value></param>")
	}
	sb.WriteString(`</params></methodCall>`)
	return []byte(sb.String())
}

func process(t *testing.T, b *Bridge, req []byte) string {
	t.Helper()
	var out []byte
	ok := b.Process(req, func(p []byte) error {
		out = append([]byte(nil), p...)
		return nil
	})
	require.True(t, ok)
	return string(out)
}

func TestDecodeMethodCall(t *testing.T) {
	method, params, err := decodeMethodCall(xmlCall("d.multicall2",
		"<string></string>",
		"<i4>42</i4>",
		"<i8>-9000000000</i8>",
		"<boolean>1</boolean>",
		"bare text",
		"<base64>aGVsbG8=</base64>",
		"<double>2.9</double>",
		"<nil/>",
		"<array><data><value><int>1</int></value><value>x</value></data></array>",
		"<struct><member><name>k</name><value><string>v</string></value></member></struct>",
	))
	require.NoError(t, err)
	require.Equal(t, "d.multicall2", method)

	m := object.NewMap()
	m.SetKey("k", object.String("v"))
	want := []object.Value{
		object.String(""),
		object.Int(42),
		object.Int(-9000000000),
		object.Int(1),
		object.String("bare text"),
		object.String("hello"),
		object.Int(2),
		object.None(),
		object.List(object.Int(1), object.String("x")),
		m,
	}
	require.Len(t, params, len(want))
	for i := range want {
		require.True(t, want[i].Equal(params[i]), "param %d: got %s want %s", i, params[i], want[i])
	}
}

func TestDecodeMethodCallErrors(t *testing.T) {
	for _, req := range []string{
		``,
		`<methodResponse/>`,
		`<methodCall><params/></methodCall>`,
		`<methodCall><methodName>x</methodName><params><param><value><i4>abc</i4></value></param></params></methodCall>`,
		`<methodCall><methodName>x</methodName><params><param><value><unknown/></value></param></params></methodCall>`,
		`<methodCall><methodName>x</methodName><params><param><value><double>1e300</double></value></param></params></methodCall>`,
		`<methodCall><methodName>x</methodName><params><param><value><string>open`,
	} {
		_, _, err := decodeMethodCall([]byte(req))
		require.Error(t, err, req)
	}
}

func nestedArrays(depth int) string {
	return strings.Repeat("<array><data><value>", depth) + "<i4>1</i4>" + strings.Repeat("</value></data></array>", depth)
}

func TestDecodeNestingDepth(t *testing.T) {
	_, params, err := decodeMethodCall(xmlCall("x", nestedArrays(10)))
	require.NoError(t, err)
	require.Len(t, params, 1)

	_, _, err = decodeMethodCall(xmlCall("x", nestedArrays(100000)))
	require.Error(t, err)

	b, _, _ := newTestBridge(t)
	require.NoError(t, b.SetSizeLimit(config.MaxSizeLimit))
	out := process(t, b, xmlCall("system.listMethods", nestedArrays(100000)))
	require.Contains(t, out, "<i4>-503</i4>")
}

func TestEncodeDialects(t *testing.T) {
	v := object.List(object.Int(5), object.Int(1<<40), object.None())

	tests := []struct {
		dialect Dialect
		want    []string
	}{
		{DialectGeneric, []string{"<i4>5</i4>", "<i8>1099511627776</i8>", "<value><i4>0</i4></value>"}},
		{DialectI8, []string{"<i8>5</i8>", "<i8>1099511627776</i8>", "<nil/>"}},
		{DialectApache, []string{`xmlns:ex="` + apacheNamespace + `"`, "<ex:i8>5</ex:i8>", "<ex:nil/>"}},
	}
	for _, tt := range tests {
		t.Run(tt.dialect.String(), func(t *testing.T) {
			out := string(encodeResponse(v, tt.dialect))
			for _, w := range tt.want {
				require.Contains(t, out, w)
			}
		})
	}
}

func TestEncodeEscapesStrings(t *testing.T) {
	m := object.NewMap()
	m.SetKey("a<b", object.String("x & y"))
	out := string(encodeResponse(m, DialectI8))
	require.Contains(t, out, "<name>a&lt;b</name>")
	require.Contains(t, out, "<string>x &amp; y</string>")
}

func TestProcessRoundTrip(t *testing.T) {
	b, _, _ := newTestBridge(t)

	out := process(t, b, xmlCall("method.insert", "<string></string>", "<string>test.s</string>", "<string>string</string>", "<string>abc</string>"))
	require.Contains(t, out, "<nil/>")

	out = process(t, b, xmlCall("test.s", "<string></string>"))
	require.Contains(t, out, "<params><param><value><string>abc</string></value></param></params>")

	out = process(t, b, xmlCall("d.name", "<string>"+testHash+"</string>"))
	require.Contains(t, out, "<string>ubuntu.iso</string>")
}

func TestProcessFaults(t *testing.T) {
	b, _, _ := newTestBridge(t)

	tests := []struct {
		name string
		req  []byte
		code string
	}{
		{"unknown method", xmlCall("nope"), "<i4>-506</i4>"},
		{"input error", xmlCall("method.get", "<string></string>", "<string>missing</string>"), "<i4>-501</i4>"},
		{"parse error", []byte("<methodCall>"), "<i4>-503</i4>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := process(t, b, tt.req)
			require.Contains(t, out, "<fault>")
			require.Contains(t, out, "<name>faultCode</name><value>"+tt.code)
		})
	}
}

func TestProcessSizeLimit(t *testing.T) {
	b, _, _ := newTestBridge(t)
	require.NoError(t, b.SetSizeLimit(64))

	out := process(t, b, xmlCall("system.listMethods", "<string>"+strings.Repeat("x", 100)+"</string>"))
	require.Contains(t, out, "<i4>-509</i4>")
}

func TestProcessWriteFailure(t *testing.T) {
	b, _, _ := newTestBridge(t)
	ok := b.Process(xmlCall("system.api_version"), func([]byte) error {
		return errors.New("connection reset")
	})
	require.False(t, ok)
}
