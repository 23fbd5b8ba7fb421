package observability

import (
	"context"
	"path"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RequestIDHeader carries the request id in gRPC metadata, both ways.
const RequestIDHeader = "x-request-id"

type requestIDKey struct{}

// RequestID returns the id assigned by RequestLogger, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestLogger tags each call with a request id, reusing one supplied by the
// client, and logs the outcome.
func RequestLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		id := incomingRequestID(ctx)
		if id == "" {
			id = ksuid.New().String()
		}
		ctx = context.WithValue(ctx, requestIDKey{}, id)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := zapcore.InfoLevel
		if err != nil {
			level = zapcore.WarnLevel
		}
		if ce := logger.Check(level, "grpc_request"); ce != nil {
			ce.Write(
				zap.String("request_id", id),
				zap.String("method", path.Base(info.FullMethod)),
				zap.String("code", code.String()),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		}
		return resp, err
	}
}

// RequestMetrics records call counts, latencies and payload sizes.
func RequestMetrics() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		method := path.Base(info.FullMethod)
		RecordRPC(method, status.Code(err).String(), time.Since(start))
		if in, ok := req.(*wrapperspb.BytesValue); ok {
			RecordPayload(method, len(in.GetValue()))
		}
		if out, ok := resp.(*wrapperspb.BytesValue); ok && err == nil {
			RecordPayload(method, len(out.GetValue()))
		}
		return resp, err
	}
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(RequestIDHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}
