package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"ai-interview-audio-service/internal/observability/metrics"
)

// sessionKeyHeader mirrors grpcapi.MetadataSessionKey; importing the API
// package here would create a cycle.
const sessionKeyHeader = "x-session-key"

// UnaryServerInterceptor logs unary calls (health checks, reflection) at
// debug level so health checks do not flood the logs.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		log.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC unary call")
		return resp, err
	}
}

// StreamServerInterceptor counts audio streams and logs each one with its
// session key.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		m.RecordStreamStart("grpc")

		err := handler(srv, ss)

		elapsed := time.Since(start)
		code := status.Code(err)
		m.RecordStreamEnd("grpc", err == nil, elapsed.Seconds())

		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("sessionKey", sessionKeyFrom(ss.Context())).
			Str("code", code.String()).
			Dur("duration", elapsed).
			Msg("gRPC stream completed")
		return err
	}
}

func sessionKeyFrom(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(sessionKeyHeader); len(v) > 0 {
		return v[0]
	}
	return ""
}
