// Command testclient exercises the gRPC StreamAudio call with synthetic
// audio and prints every result the server pushes back.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	grpcapi "ai-interview-audio-service/internal/api/grpc"
	"ai-interview-audio-service/internal/service/audio"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	sessionKey := flag.String("session", "grpc-"+time.Now().Format("150405"), "Session key")
	token := flag.String("token", "", "Bearer token")
	rate := flag.Int("rate", 16000, "Sample rate of the generated audio")
	seconds := flag.Int("seconds", 12, "Seconds of audio to send")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*seconds+30)*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx,
		grpcapi.MetadataSessionKey, *sessionKey,
		grpcapi.MetadataSampleRate, strconv.Itoa(*rate),
		grpcapi.MetadataAuth, "Bearer "+*token,
	)

	stream, err := conn.NewStream(ctx, &grpcapi.StreamAudioDesc, grpcapi.StreamAudioMethod)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create stream")
	}
	log.Info().Str("server", *serverAddr).Str("sessionKey", *sessionKey).Msg("Stream opened")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg := new(structpb.Struct)
			if err := stream.RecvMsg(msg); err != nil {
				if !errors.Is(err, io.EOF) {
					log.Error().Err(err).Msg("Stream ended with error")
				}
				return
			}
			log.Info().RawJSON("payload", []byte(protojson.Format(msg))).Msg("Received")
		}
	}()

	// One 440 Hz tone, sent in 100ms chunks.
	chunk := *rate / 10
	for i := 0; i < *seconds*10; i++ {
		samples := make([]float32, chunk)
		for j := range samples {
			t := float64(i*chunk+j) / float64(*rate)
			samples[j] = float32(0.2 * math.Sin(2*math.Pi*440*t))
		}
		if err := stream.SendMsg(wrapperspb.Bytes(audio.EncodePCM16(samples))); err != nil {
			log.Fatal().Err(err).Msg("Failed to send chunk")
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := stream.CloseSend(); err != nil {
		log.Fatal().Err(err).Msg("Failed to close stream")
	}
	<-done
	log.Info().Msg("Stream completed")
}
