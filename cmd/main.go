package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcapi "ai-interview-audio-service/internal/api/grpc"
	"ai-interview-audio-service/internal/app"
	"ai-interview-audio-service/internal/auth"
	"ai-interview-audio-service/internal/config"
	"ai-interview-audio-service/internal/events"
	httpapi "ai-interview-audio-service/internal/http"
	"ai-interview-audio-service/internal/observability"
	"ai-interview-audio-service/internal/observability/metrics"
	"ai-interview-audio-service/internal/schema"
	"ai-interview-audio-service/internal/service/emotion"
	emotionmock "ai-interview-audio-service/internal/service/emotion/mock"
	"ai-interview-audio-service/internal/service/emotion/remote"
	"ai-interview-audio-service/internal/service/feedback"
	"ai-interview-audio-service/internal/service/registry"
	"ai-interview-audio-service/internal/service/session"
	"ai-interview-audio-service/internal/service/stt"
	"ai-interview-audio-service/internal/service/stt/google"
	sttmock "ai-interview-audio-service/internal/service/stt/mock"
	sttopenai "ai-interview-audio-service/internal/service/stt/openai"
	"ai-interview-audio-service/internal/service/turn"
)

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	m := metrics.DefaultMetrics

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transcriber, closeSTT, err := newTranscriber(ctx, cfg.STT)
	if err != nil {
		log.Fatal().Err(err).Str("sttProvider", cfg.STT.Provider).Msg("Failed to initialize STT engine")
	}
	defer closeSTT()

	classifier := newClassifier(cfg.Emotion)

	// Publish interim and turn events (log-only when Kafka is disabled)
	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicInterim: cfg.Kafka.TopicInterim,
		TopicTurn:    cfg.Kafka.TopicTurn,
		Principal:    cfg.Kafka.Principal,
	}, m)
	defer publisher.Close()

	phrases, words := cfg.Turn.EndPhrases, cfg.Turn.EndWords
	if len(phrases) == 0 && len(words) == 0 {
		phrases, words = turn.Vocabulary(cfg.STT.LanguageCode)
	}

	reg := registry.New(m)
	orch := session.New(session.Config{
		TargetRate:       cfg.Audio.TargetSampleRateHz,
		MinSeconds:       cfg.Audio.MinSegmentSeconds,
		MaxBufferBytes:   cfg.Audio.MaxBufferBytes,
		RetainTranscript: cfg.Audio.RetainTranscript,
		LanguageCode:     cfg.STT.LanguageCode,
	}, session.Deps{
		Transcriber: stt.NewAdapter(transcriber, stt.Config{
			Provider:      cfg.STT.Provider,
			Timeout:       cfg.STT.Timeout,
			MaxConcurrent: int64(cfg.STT.MaxConcurrent),
		}, m),
		Classifier: emotion.NewAdapter(classifier, emotion.Config{
			Provider:      cfg.Emotion.Provider,
			Timeout:       cfg.Emotion.Timeout,
			MaxConcurrent: int64(cfg.Emotion.MaxConcurrent),
		}, m),
		Detector:  turn.New(phrases, words),
		Pusher:    reg,
		Publisher: publisher,
		Validator: schema.New(m),
		Metrics:   m,
	})

	verifier := auth.New(auth.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.JWTIssuer,
		Leeway: cfg.Auth.Leeway,
	})

	var fb httpapi.FeedbackGenerator
	if gen, err := feedback.New(feedback.Config{
		APIKey:  cfg.Feedback.APIKey,
		BaseURL: cfg.Feedback.BaseURL,
		Model:   cfg.Feedback.Model,
		Timeout: cfg.Feedback.Timeout,
	}); err != nil {
		log.Warn().Err(err).Msg("Feedback generation disabled")
	} else {
		fb = gen
	}

	// HTTP and WebSocket transport
	httpServer := &http.Server{
		Addr: ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(httpapi.Dependencies{
			App:          application,
			Orchestrator: orch,
			Registry:     reg,
			Verifier:     verifier,
			Feedback:     fb,
			Metrics:      m,
			Options: httpapi.Options{
				DefaultSourceRate: cfg.Audio.SourceSampleRateHz,
				TargetRate:        cfg.Audio.TargetSampleRateHz,
				MaxFrameBytes:     cfg.Audio.MaxFrameBytes,
				WriteTimeout:      cfg.Audio.WSWriteTimeout,
			},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC transport
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("Failed to listen")
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcapi.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	grpcapi.Register(grpcServer, grpcapi.Deps{
		Orchestrator:      orch,
		Registry:          reg,
		Verifier:          verifier,
		Metrics:           m,
		DefaultSourceRate: cfg.Audio.SourceSampleRateHz,
	})

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	metricsServer := observability.NewServer(":"+cfg.Service.MetricsPort, prometheus.DefaultGatherer, application.Ready)
	metricsServer.Start()

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC server started")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC serve failed")
		}
	}()
	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	application.Shutdown()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	reg.CloseAll()
	orch.CloseAll()
	grpcServer.GracefulStop()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Metrics server shutdown incomplete")
	}
	log.Info().Msg("Shutdown complete")
}

func newTranscriber(ctx context.Context, cfg config.STTConfig) (stt.Transcriber, func(), error) {
	switch cfg.Provider {
	case "google":
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = cfg.LanguageCode
		gcfg.AudioEncoding = cfg.AudioEncoding
		gcfg.Model = cfg.Model
		a, err := google.New(ctx, gcfg)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { _ = a.Close() }, nil
	case "openai":
		ocfg := sttopenai.DefaultConfig()
		ocfg.APIKey = cfg.OpenAIAPIKey
		ocfg.BaseURL = cfg.OpenAIBaseURL
		ocfg.Model = cfg.OpenAIModel
		a, err := sttopenai.New(ocfg)
		if err != nil {
			return nil, nil, err
		}
		return a, func() {}, nil
	default:
		log.Info().Msg("Using mock STT engine")
		return sttmock.New(), func() {}, nil
	}
}

func newClassifier(cfg config.EmotionConfig) emotion.Classifier {
	if cfg.Provider == "remote" && cfg.ServiceURL != "" {
		return remote.New(remote.Config{
			URL:     cfg.ServiceURL,
			Labels:  cfg.Labels,
			Timeout: cfg.Timeout,
		}, emotion.NewFeatureExtractor(emotion.DefaultFeatureConfig()))
	}
	log.Info().Msg("Using mock emotion classifier")
	return emotionmock.New()
}
