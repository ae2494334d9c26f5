// Package grpc exposes the loader and backup operations over gRPC.
//
// The service uses the well-known protobuf types (Struct, ListValue,
// StringValue) as messages, so it needs no generated code:
//
//	service hrload.v1.Loader {
//	  rpc Insert(google.protobuf.ListValue) returns (google.protobuf.Struct);
//	  rpc Backup(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	  rpc Restore(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	}
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "hrload.v1.Loader"

// Full method names.
const (
	MethodInsert  = "/" + ServiceName + "/Insert"
	MethodBackup  = "/" + ServiceName + "/Backup"
	MethodRestore = "/" + ServiceName + "/Restore"
)

// LoaderServer is the server API of the Loader service.
type LoaderServer interface {
	Insert(ctx context.Context, req *structpb.ListValue) (*structpb.Struct, error)
	Backup(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	Restore(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

// RegisterLoaderServer registers srv with a gRPC server.
func RegisterLoaderServer(s grpc.ServiceRegistrar, srv LoaderServer) {
	s.RegisterService(&LoaderServiceDesc, srv)
}

// LoaderServiceDesc describes the Loader service to the gRPC runtime.
var LoaderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LoaderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Insert", Handler: insertHandler},
		{MethodName: "Backup", Handler: backupHandler},
		{MethodName: "Restore", Handler: restoreHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hrload/v1/loader.proto",
}

func insertHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LoaderServer).Insert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodInsert}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LoaderServer).Insert(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

func backupHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LoaderServer).Backup(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodBackup}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LoaderServer).Backup(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func restoreHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LoaderServer).Restore(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodRestore}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LoaderServer).Restore(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// LoaderClient is a client for the Loader service.
type LoaderClient struct {
	cc grpc.ClientConnInterface
}

// NewLoaderClient creates a client over an established connection.
func NewLoaderClient(cc grpc.ClientConnInterface) *LoaderClient {
	return &LoaderClient{cc: cc}
}

// Insert calls Loader.Insert.
func (c *LoaderClient) Insert(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodInsert, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Backup calls Loader.Backup.
func (c *LoaderClient) Backup(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodBackup, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Restore calls Loader.Restore.
func (c *LoaderClient) Restore(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodRestore, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
