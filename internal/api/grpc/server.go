// Package grpcapi exposes interview sessions over a bidirectional gRPC
// stream. Audio travels as google.protobuf.BytesValue messages and results
// come back as google.protobuf.Struct, so clients need no generated stubs.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"ai-interview-audio-service/internal/auth"
	"ai-interview-audio-service/internal/observability/logging"
	"ai-interview-audio-service/internal/observability/metrics"
	"ai-interview-audio-service/internal/service/audio"
	"ai-interview-audio-service/internal/service/registry"
	"ai-interview-audio-service/internal/service/session"
)

const (
	ServiceName       = "interview.audio.v1.AudioSessionService"
	StreamAudioMethod = "/" + ServiceName + "/StreamAudio"

	// Request metadata keys.
	MetadataSessionKey = "x-session-key"
	MetadataSampleRate = "x-sample-rate"
	MetadataAuth       = "authorization"
)

// StreamAudioDesc describes the StreamAudio call for clients using
// grpc.ClientConn.NewStream directly.
var StreamAudioDesc = grpc.StreamDesc{
	StreamName:    "StreamAudio",
	ServerStreams: true,
	ClientStreams: true,
}

// AudioSessionServer is the server API for the audio session service.
type AudioSessionServer interface {
	StreamAudio(stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AudioSessionServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    StreamAudioDesc.StreamName,
		Handler:       streamAudioHandler,
		ServerStreams: true,
		ClientStreams: true,
	}},
	Metadata: "interview/audio/v1/audio_session.proto",
}

func streamAudioHandler(srv any, stream grpc.ServerStream) error {
	return srv.(AudioSessionServer).StreamAudio(stream)
}

// Deps are the services a stream is wired to.
type Deps struct {
	Orchestrator      *session.Orchestrator
	Registry          *registry.Registry
	Verifier          auth.Verifier
	Metrics           *metrics.Metrics
	DefaultSourceRate int
}

// Server implements AudioSessionServer.
type Server struct {
	deps Deps
}

// Register adds the audio session service to g.
func Register(g *grpc.Server, deps Deps) *Server {
	if deps.Verifier == nil {
		deps.Verifier = auth.AllowAll{}
	}
	s := &Server{deps: deps}
	g.RegisterService(&serviceDesc, s)
	return s
}

// StreamAudio runs one session for the lifetime of the stream. Each request
// message carries a PCM16 chunk; each response is an interim or turn result.
func (s *Server) StreamAudio(stream grpc.ServerStream) error {
	ctx := stream.Context()
	md, _ := metadata.FromIncomingContext(ctx)

	key := first(md, MetadataSessionKey)
	if key == "" {
		return status.Error(codes.InvalidArgument, "missing "+MetadataSessionKey+" metadata")
	}
	logger := logging.WithSession(key)

	if _, err := s.deps.Verifier.Verify(first(md, MetadataAuth)); err != nil {
		s.deps.Metrics.RecordAuthRejected("grpc")
		logger.Warn().Err(err).Msg("Rejecting stream with invalid token")
		return status.Error(codes.Unauthenticated, "invalid token")
	}

	rate := s.deps.DefaultSourceRate
	if v := first(md, MetadataSampleRate); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			n = -1
		}
		rate = n
	}

	sess, err := s.deps.Orchestrator.Open(key, session.OpenOptions{SourceRate: rate})
	if err != nil {
		var unsupported *audio.UnsupportedRateError
		if errors.As(err, &unsupported) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		return status.Error(codes.Internal, err.Error())
	}

	ch := newGRPCChannel(stream)
	if prev := s.deps.Registry.Connect(key, ch); prev != nil {
		_ = prev.Close()
	}
	defer func() {
		s.deps.Registry.DisconnectChannel(key, ch)
		s.deps.Orchestrator.Release(sess)
		_ = ch.Close()
	}()

	recvErr := make(chan error, 1)
	go func() { recvErr <- s.recvLoop(ctx, stream, sess) }()

	select {
	case err := <-recvErr:
		return err
	case <-ch.done:
		logger.Info().Msg("Stream replaced by a newer connection")
		return nil
	}
}

func (s *Server) recvLoop(ctx context.Context, stream grpc.ServerStream, sess *session.Session) error {
	logger := logging.WithSession(sess.Key())

	for {
		chunk := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(chunk); err != nil {
			if errors.Is(err, io.EOF) || sess.Closed() || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}

		err := s.deps.Orchestrator.HandleChunk(ctx, sess, chunk.GetValue())
		switch {
		case err == nil:
		case errors.Is(err, session.ErrSessionClosed):
			return nil
		default:
			logger.Debug().Err(err).Msg("Chunk not processed")
		}
	}
}

// grpcChannel adapts a server stream to registry.Channel.
type grpcChannel struct {
	stream grpc.ServerStream

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newGRPCChannel(stream grpc.ServerStream) *grpcChannel {
	return &grpcChannel{stream: stream, done: make(chan struct{})}
}

func (c *grpcChannel) Send(_ context.Context, payload any) error {
	msg, err := toStruct(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return registry.ErrChannelGone
	}
	if err := c.stream.SendMsg(msg); err != nil {
		return errors.Join(registry.ErrChannelGone, err)
	}
	return nil
}

// Close ends the stream handler. Idempotent.
func (c *grpcChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// toStruct converts a JSON-tagged payload into a protobuf Struct with the
// same field names the WebSocket transport emits.
func toStruct(payload any) (*structpb.Struct, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
