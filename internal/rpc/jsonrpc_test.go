package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func processJSON(t *testing.T, b *Bridge, req string) (string, bool) {
	t.Helper()
	var (
		out     []byte
		written bool
	)
	ok := b.ProcessJSON([]byte(req), func(p []byte) error {
		out = append([]byte(nil), p...)
		written = true
		return nil
	})
	require.True(t, ok)
	return string(out), written
}

func TestJSONCall(t *testing.T) {
	b, _, _ := newTestBridge(t)

	out, _ := processJSON(t, b, `{"jsonrpc":"2.0","id":7,"method":"d.name","params":["`+testHash+`"]}`)
	require.Equal(t, int64(7), gjson.Get(out, "id").Int())
	require.Equal(t, "ubuntu.iso", gjson.Get(out, "result").String())
	require.False(t, gjson.Get(out, "error").Exists())

	out, _ = processJSON(t, b, `{"jsonrpc":"2.0","id":"a","method":"method.insert","params":["","test.l","list"]}`)
	require.Equal(t, "a", gjson.Get(out, "id").String())
	require.Equal(t, gjson.Null, gjson.Get(out, "result").Type)

	out, _ = processJSON(t, b, `{"jsonrpc":"2.0","id":1,"method":"test.l.set","params":["",{"k":[1,2]}]}`)
	require.False(t, gjson.Get(out, "error").Exists(), out)

	out, _ = processJSON(t, b, `{"jsonrpc":"2.0","id":2,"method":"test.l","params":[""]}`)
	require.Equal(t, int64(2), gjson.Get(out, "result.0.k.1").Int(), out)
}

func TestJSONErrors(t *testing.T) {
	b, _, _ := newTestBridge(t)

	tests := []struct {
		name string
		req  string
		code int64
	}{
		{"parse", `{"jsonrpc":`, FaultParse},
		{"not 2.0", `{"jsonrpc":"1.0","id":1,"method":"x"}`, jsonInvalidRequest},
		{"bad params", `{"jsonrpc":"2.0","id":1,"method":"x","params":3}`, jsonInvalidRequest},
		{"unknown", `{"jsonrpc":"2.0","id":1,"method":"nope"}`, FaultUnknownMethod},
		{"input", `{"jsonrpc":"2.0","id":1,"method":"method.get","params":["","missing"]}`, FaultInput},
		{"empty batch", `[]`, jsonInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, written := processJSON(t, b, tt.req)
			require.True(t, written)
			require.Equal(t, tt.code, gjson.Get(out, "error.code").Int(), out)
			require.NotEmpty(t, gjson.Get(out, "error.message").String())
		})
	}
}

func TestJSONNotificationsAndBatch(t *testing.T) {
	b, e, _ := newTestBridge(t)

	_, written := processJSON(t, b, `{"jsonrpc":"2.0","method":"method.insert","params":["","test.n","value",3]}`)
	require.False(t, written)
	require.True(t, e.Commands().Has("test.n"))

	out, written := processJSON(t, b, `[
		{"jsonrpc":"2.0","id":1,"method":"test.n","params":[""]},
		{"jsonrpc":"2.0","method":"test.n.set","params":["",4]},
		{"jsonrpc":"2.0","id":2,"method":"nope"}
	]`)
	require.True(t, written)
	replies := gjson.Parse(out).Array()
	require.Len(t, replies, 2)
	require.Equal(t, int64(3), replies[0].Get("result").Int())
	require.Equal(t, int64(FaultUnknownMethod), replies[1].Get("error.code").Int())

	_, written = processJSON(t, b, `[{"jsonrpc":"2.0","method":"test.n.set","params":["",5]}]`)
	require.False(t, written)
}
