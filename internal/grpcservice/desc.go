package grpcservice

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/cliptrack/internal/store"
)

// The service is described by hand over well-known types so no generated
// code is needed:
//
//	service HistoryService {
//	  rpc Recent(google.protobuf.UInt32Value) returns (google.protobuf.ListValue);
//	  rpc Clear(google.protobuf.Empty) returns (google.protobuf.Int64Value);
//	  rpc Restore(google.protobuf.Int64Value) returns (google.protobuf.Empty);
//	  rpc Status(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc Watch(google.protobuf.Empty) returns (stream google.protobuf.Empty);
//	}
//
// Records travel as Structs with the fields id, content and captured_at
// (RFC 3339).
const (
	ServiceName = "cliptrack.v1.HistoryService"

	methodRecent  = "/" + ServiceName + "/Recent"
	methodClear   = "/" + ServiceName + "/Clear"
	methodRestore = "/" + ServiceName + "/Restore"
	methodStatus  = "/" + ServiceName + "/Status"
	methodWatch   = "/" + ServiceName + "/Watch"
)

// HistoryServer is the server API for HistoryService.
type HistoryServer interface {
	Recent(context.Context, *wrapperspb.UInt32Value) (*structpb.ListValue, error)
	Clear(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	Restore(context.Context, *wrapperspb.Int64Value) (*emptypb.Empty, error)
	Status(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*emptypb.Empty, WatchStream) error
}

// WatchStream is the server side of a Watch call.
type WatchStream interface {
	Send(*emptypb.Empty) error
	Context() context.Context
}

// RegisterHistoryServer registers srv with s.
func RegisterHistoryServer(s grpc.ServiceRegistrar, srv HistoryServer) {
	s.RegisterService(&historyServiceDesc, srv)
}

var historyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HistoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recent", Handler: recentHandler},
		{MethodName: "Clear", Handler: clearHandler},
		{MethodName: "Restore", Handler: restoreHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "cliptrack/v1/history.proto",
}

func recentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HistoryServer).Recent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRecent}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HistoryServer).Recent(ctx, req.(*wrapperspb.UInt32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func clearHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HistoryServer).Clear(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodClear}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HistoryServer).Clear(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func restoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HistoryServer).Restore(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRestore}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HistoryServer).Restore(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HistoryServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(HistoryServer).Status(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(HistoryServer).Watch(in, &watchServerStream{stream})
}

type watchServerStream struct {
	grpc.ServerStream
}

func (s *watchServerStream) Send(m *emptypb.Empty) error { return s.ServerStream.SendMsg(m) }

// ── client ─────────────────────────────────────────────────────────────────

// Client is a typed HistoryService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Recent returns up to limit records, newest first. limit 0 lets the daemon
// pick its default.
func (c *Client) Recent(ctx context.Context, limit int, opts ...grpc.CallOption) ([]store.Record, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, methodRecent, wrapperspb.UInt32(uint32(max(limit, 0))), out, opts...); err != nil {
		return nil, err
	}
	return decodeRecords(out)
}

// Clear deletes all history and returns how many records were removed.
func (c *Client) Clear(ctx context.Context, opts ...grpc.CallOption) (int64, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, methodClear, &emptypb.Empty{}, out, opts...); err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}

// Restore puts record id back on the clipboard.
func (c *Client) Restore(ctx context.Context, id int64, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, methodRestore, wrapperspb.Int64(id), &emptypb.Empty{}, opts...)
}

// Status returns the daemon status document.
func (c *Client) Status(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodStatus, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch opens a pulse stream. Call Recv on the result in a loop.
func (c *Client) Watch(ctx context.Context, opts ...grpc.CallOption) (*WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &historyServiceDesc.Streams[0], methodWatch, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchClient{stream: stream}, nil
}

// WatchClient receives pulses.
type WatchClient struct {
	stream grpc.ClientStream
}

// Recv blocks until the next pulse or an error.
func (w *WatchClient) Recv() error {
	return w.stream.RecvMsg(new(emptypb.Empty))
}

// ── record encoding ────────────────────────────────────────────────────────

func encodeRecord(r store.Record) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          structpb.NewNumberValue(float64(r.ID)),
		"content":     structpb.NewStringValue(r.Content),
		"captured_at": structpb.NewStringValue(r.CapturedAt.UTC().Format(time.RFC3339Nano)),
	}})
}

func encodeRecords(recs []store.Record) *structpb.ListValue {
	out := &structpb.ListValue{Values: make([]*structpb.Value, len(recs))}
	for i, r := range recs {
		out.Values[i] = encodeRecord(r)
	}
	return out
}

func decodeRecords(l *structpb.ListValue) ([]store.Record, error) {
	out := make([]store.Record, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		f := v.GetStructValue().GetFields()
		if f == nil {
			return nil, fmt.Errorf("record %d: not a struct", i)
		}
		at, err := time.Parse(time.RFC3339Nano, f["captured_at"].GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("record %d: captured_at: %w", i, err)
		}
		out = append(out, store.Record{
			ID:         int64(f["id"].GetNumberValue()),
			Content:    f["content"].GetStringValue(),
			CapturedAt: at,
		})
	}
	return out, nil
}
