package rpc

import (
	"bytes"
	"errors"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/funvibe/torrentrpc/internal/object"
)

// JSON-RPC 2.0 codes for malformed envelopes. Dispatch failures keep the
// XML-RPC fault codes so clients see the same numbers on both transports.
const (
	jsonInvalidRequest = -32600
)

// ProcessJSON handles a JSON-RPC 2.0 request or batch held in buf.
// Notifications get no reply; a batch of only notifications writes nothing.
// It reports whether write succeeded.
func (b *Bridge) ProcessJSON(buf []byte, write func([]byte) error) bool {
	id := uuid.NewString()

	var out []byte
	switch {
	case int64(len(buf)) > b.sizeLimit:
		out = jsonError("null", faultf(FaultSizeLimit, "Content size exceeds maximum limit"))
	case !gjson.ValidBytes(buf):
		out = jsonError("null", faultf(FaultParse, "Parse error"))
	default:
		req := gjson.ParseBytes(buf)
		if req.IsArray() {
			out = b.jsonBatch(id, req)
		} else {
			out = b.jsonCall(id, req)
		}
	}

	if out == nil {
		return true
	}
	if err := write(out); err != nil {
		log.Warnw("jsonrpc write failed", "id", id, "error", err)
		return false
	}
	return true
}

func (b *Bridge) jsonBatch(id string, req gjson.Result) []byte {
	calls := req.Array()
	if len(calls) == 0 {
		return jsonError("null", &Fault{Code: jsonInvalidRequest, Msg: "Invalid Request"})
	}

	var replies [][]byte
	for _, call := range calls {
		if reply := b.jsonCall(id, call); reply != nil {
			replies = append(replies, reply)
		}
	}
	if len(replies) == 0 {
		return nil
	}

	var out bytes.Buffer
	out.WriteByte('[')
	out.Write(bytes.Join(replies, []byte{','}))
	out.WriteByte(']')
	return out.Bytes()
}

// jsonCall runs one request object and returns its reply, or nil for a
// notification.
func (b *Bridge) jsonCall(id string, req gjson.Result) []byte {
	if !req.IsObject() || req.Get("jsonrpc").String() != "2.0" || req.Get("method").Type != gjson.String {
		return jsonError("null", &Fault{Code: jsonInvalidRequest, Msg: "Invalid Request"})
	}

	reqID := req.Get("id")
	notification := !reqID.Exists()
	rawID := "null"
	if !notification {
		rawID = reqID.Raw
	}

	method := req.Get("method").String()
	params, err := jsonParams(req.Get("params"))
	if err != nil {
		if notification {
			return nil
		}
		return jsonError(rawID, &Fault{Code: jsonInvalidRequest, Msg: err.Error()})
	}

	log.Debugw("jsonrpc call", "id", id, "method", method, "params", len(params))
	result, err := b.Call("jsonrpc", method, params)
	if notification {
		return nil
	}
	if err != nil {
		return jsonError(rawID, toFault(err))
	}

	out, err := sjson.SetRawBytes([]byte(`{"jsonrpc":"2.0"}`), "id", []byte(rawID))
	if err == nil {
		out, err = sjson.SetBytes(out, "result", object.ToGo(result))
	}
	if err != nil {
		return jsonError(rawID, &Fault{Code: FaultInternal, Msg: err.Error()})
	}
	return out
}

// jsonParams accepts positional params only; by-name params are passed as
// a single map argument.
func jsonParams(p gjson.Result) ([]object.Value, error) {
	if !p.Exists() {
		return nil, nil
	}
	switch {
	case p.IsArray():
		items := p.Array()
		params := make([]object.Value, 0, len(items))
		for _, item := range items {
			v, err := object.FromGo(item.Value())
			if err != nil {
				return nil, err
			}
			params = append(params, v)
		}
		return params, nil
	case p.IsObject():
		v, err := object.FromGo(p.Value())
		if err != nil {
			return nil, err
		}
		return []object.Value{v}, nil
	}
	return nil, errors.New("params must be an array or object")
}

func jsonError(rawID string, f *Fault) []byte {
	out, _ := sjson.SetRawBytes([]byte(`{"jsonrpc":"2.0"}`), "id", []byte(rawID))
	out, _ = sjson.SetBytes(out, "error.code", f.Code)
	out, _ = sjson.SetBytes(out, "error.message", f.Msg)
	return out
}
