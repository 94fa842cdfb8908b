package rpc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/funvibe/torrentrpc/internal/object"
)

const commandsProtoName = "torrentrpc.proto"

const commandsProto = `syntax = "proto3";

package torrentrpc;

message Entry {
  string key = 1;
  Value value = 2;
}

message ValueList {
  repeated Value items = 1;
}

message ValueMap {
  repeated Entry entries = 1;
}

message Value {
  oneof kind {
    bool none = 1;
    int64 int = 2;
    string str = 3;
    ValueList list = 4;
    ValueMap map = 5;
  }
}

message CallRequest {
  string method = 1;
  string target = 2;
  repeated Value params = 3;
}

message CallResponse {
  Value result = 1;
  int32 fault_code = 2;
  string fault_string = 3;
}

service Commands {
  rpc Call(CallRequest) returns (CallResponse);
}
`

// CommandsService is the fully qualified gRPC service name.
const CommandsService = "torrentrpc.Commands"

// Executor runs fn on the goroutine that owns the engine and waits for it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

func loadCommandsProto() (*desc.ServiceDescriptor, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{
			commandsProtoName: commandsProto,
		}),
	}
	fds, err := parser.ParseFiles(commandsProtoName)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", commandsProtoName, err)
	}
	sd := fds[0].FindService(CommandsService)
	if sd == nil {
		return nil, fmt.Errorf("service %s not found", CommandsService)
	}
	return sd, nil
}

// GRPCService serves the bridge as torrentrpc.Commands/Call. Requests carry
// the target out of band, so params never lose a leading string.
type GRPCService struct {
	bridge *Bridge
	exec   Executor
	sd     *desc.ServiceDescriptor
	call   *desc.MethodDescriptor
}

// NewGRPCService builds the service. A nil exec calls the bridge directly on
// the handler goroutine.
func NewGRPCService(b *Bridge, exec Executor) (*GRPCService, error) {
	sd, err := loadCommandsProto()
	if err != nil {
		return nil, err
	}
	return &GRPCService{bridge: b, exec: exec, sd: sd, call: sd.FindMethodByName("Call")}, nil
}

// Register adds the service to srv.
func (s *GRPCService) Register(srv *grpc.Server) {
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: CommandsService,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: s.call.GetName(),
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
				return srv.(*GRPCService).handleCall(ctx, dec)
			},
		}},
		Streams:  []grpc.StreamDesc{},
		Metadata: s.sd.GetFile().GetName(),
	}, s)
}

func (s *GRPCService) handleCall(ctx context.Context, dec func(interface{}) error) (interface{}, error) {
	in := dynamic.NewMessage(s.call.GetInputType())
	if err := dec(in); err != nil {
		return nil, err
	}

	method, _ := in.GetFieldByName("method").(string)
	target, _ := in.GetFieldByName("target").(string)
	params, err := messagesToValues(in.GetFieldByName("params"))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	id := uuid.NewString()
	log.Debugw("grpc call", "id", id, "method", method, "target", target, "params", len(params))

	var (
		result  object.Value
		callErr error
	)
	run := func() { result, callErr = s.bridge.CallTarget("grpc", method, target, params) }
	if s.exec == nil {
		run()
	} else if err := s.exec.Do(ctx, run); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	out := dynamic.NewMessage(s.call.GetOutputType())
	if callErr != nil {
		f := toFault(callErr)
		out.SetFieldByName("fault_code", int32(f.Code))
		out.SetFieldByName("fault_string", f.Msg)
		return out, nil
	}
	out.SetFieldByName("result", valueToMessage(s.valueType(), result))
	return out, nil
}

func (s *GRPCService) valueType() *desc.MessageDescriptor {
	return s.call.GetOutputType().FindFieldByName("result").GetMessageType()
}

func valueToMessage(md *desc.MessageDescriptor, v object.Value) *dynamic.Message {
	msg := dynamic.NewMessage(md)
	switch v.Kind() {
	case object.VALUE_OBJ:
		msg.SetFieldByName("int", v.AsValue())
	case object.STRING_OBJ:
		msg.SetFieldByName("str", v.AsString())
	case object.LIST_OBJ:
		list := dynamic.NewMessage(md.FindFieldByName("list").GetMessageType())
		items := make([]interface{}, 0, v.Len())
		for _, item := range v.AsList() {
			items = append(items, valueToMessage(md, item))
		}
		list.SetFieldByName("items", items)
		msg.SetFieldByName("list", list)
	case object.MAP_OBJ:
		mapType := md.FindFieldByName("map").GetMessageType()
		entryType := mapType.FindFieldByName("entries").GetMessageType()
		m := dynamic.NewMessage(mapType)
		entries := make([]interface{}, 0, v.Len())
		for _, key := range v.Keys() {
			item, _ := v.Get(key)
			entry := dynamic.NewMessage(entryType)
			entry.SetFieldByName("key", key)
			entry.SetFieldByName("value", valueToMessage(md, item))
			entries = append(entries, entry)
		}
		m.SetFieldByName("entries", entries)
		msg.SetFieldByName("map", m)
	default:
		msg.SetFieldByName("none", true)
	}
	return msg
}

func messagesToValues(field interface{}) ([]object.Value, error) {
	items, _ := field.([]interface{})
	values := make([]object.Value, 0, len(items))
	for _, item := range items {
		msg, ok := item.(*dynamic.Message)
		if !ok {
			return nil, fmt.Errorf("unexpected param type %T", item)
		}
		v, err := messageToValue(msg)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func messageToValue(msg *dynamic.Message) (object.Value, error) {
	if msg == nil {
		return object.None(), nil
	}
	switch {
	case msg.HasFieldName("int"):
		n, _ := msg.GetFieldByName("int").(int64)
		return object.Int(n), nil
	case msg.HasFieldName("str"):
		s, _ := msg.GetFieldByName("str").(string)
		return object.String(s), nil
	case msg.HasFieldName("list"):
		list, _ := msg.GetFieldByName("list").(*dynamic.Message)
		if list == nil {
			return object.List(), nil
		}
		items, err := messagesToValues(list.GetFieldByName("items"))
		if err != nil {
			return object.None(), err
		}
		return object.List(items...), nil
	case msg.HasFieldName("map"):
		m := object.NewMap()
		mm, _ := msg.GetFieldByName("map").(*dynamic.Message)
		if mm == nil {
			return m, nil
		}
		entries, _ := mm.GetFieldByName("entries").([]interface{})
		for _, e := range entries {
			entry, ok := e.(*dynamic.Message)
			if !ok {
				return object.None(), fmt.Errorf("unexpected entry type %T", e)
			}
			key, _ := entry.GetFieldByName("key").(string)
			inner, _ := entry.GetFieldByName("value").(*dynamic.Message)
			v, err := messageToValue(inner)
			if err != nil {
				return object.None(), err
			}
			m.SetKey(key, v)
		}
		return m, nil
	}
	return object.None(), nil
}

// Client calls a remote torrentrpc.Commands service.
type Client struct {
	conn *grpc.ClientConn
	call *desc.MethodDescriptor
}

func NewClient(conn *grpc.ClientConn) (*Client, error) {
	sd, err := loadCommandsProto()
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, call: sd.FindMethodByName("Call")}, nil
}

// Call returns a *Fault when the server answers with a fault.
func (c *Client) Call(ctx context.Context, method, target string, params ...object.Value) (object.Value, error) {
	valueType := c.call.GetOutputType().FindFieldByName("result").GetMessageType()

	req := dynamic.NewMessage(c.call.GetInputType())
	req.SetFieldByName("method", method)
	req.SetFieldByName("target", target)
	items := make([]interface{}, 0, len(params))
	for _, p := range params {
		items = append(items, valueToMessage(valueType, p))
	}
	req.SetFieldByName("params", items)

	resp := dynamic.NewMessage(c.call.GetOutputType())
	if err := c.conn.Invoke(ctx, "/"+CommandsService+"/"+c.call.GetName(), req, resp); err != nil {
		return object.None(), err
	}

	if code, _ := resp.GetFieldByName("fault_code").(int32); code != 0 {
		msg, _ := resp.GetFieldByName("fault_string").(string)
		return object.None(), &Fault{Code: int(code), Msg: msg}
	}
	result, _ := resp.GetFieldByName("result").(*dynamic.Message)
	return messageToValue(result)
}
