package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "timetable.v1.ExtractionService"

// ExtractionServer is the server API for timetable.v1.ExtractionService.
type ExtractionServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(ExtractionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call structMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ExtractionServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ExtractionServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ExtractionServiceDesc describes the service without generated stubs; every
// message is a google.protobuf.Struct.
var ExtractionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractionServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Submit", ExtractionServer.Submit),
		unaryHandler("GetStatus", ExtractionServer.GetStatus),
		unaryHandler("ListJobs", ExtractionServer.ListJobs),
		unaryHandler("GetStats", ExtractionServer.GetStats),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timetable/v1/extraction.proto",
}

// NewGRPCServer registers the extraction service, health and reflection backed by
// the extraction file descriptor.
func NewGRPCServer(svc ExtractionServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	s := grpc.NewServer(opts...)
	s.RegisterService(&ExtractionServiceDesc, svc)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl
	if err := registerDescriptor(); err != nil {
		logger.Warn("grpc.reflection.descriptor", "error", err)
	}
	reflection.Register(s)
	return s, hs
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc.request", "method", info.FullMethod, "code", code.String(),
			"elapsed_ms", time.Since(start).Milliseconds())
		return resp, err
	}
}
