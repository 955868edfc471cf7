// Command audioclient streams a WAV file to the interview audio service over
// WebSocket in real time and prints the results it receives.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ai-interview-audio-service/internal/service/audio"
)

// Stream audio in 100ms chunks to simulate a microphone.
const chunkInterval = 100 * time.Millisecond

func main() {
	audioFile := flag.String("audio", "testdata/answer.wav", "Path to a 16-bit PCM WAV file")
	serverAddr := flag.String("server", "localhost:8080", "HTTP server address")
	sessionKey := flag.String("session", "practice-"+time.Now().Format("150405"), "Session key")
	token := flag.String("token", "", "Bearer token")
	upload := flag.Bool("upload", false, "Upload the whole file instead of streaming it")
	wait := flag.Duration("wait", 10*time.Second, "How long to wait for results after the last chunk")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	raw, err := os.ReadFile(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read audio file")
	}
	wav, err := audio.ParseWAV(bytes.NewReader(raw))
	if err != nil {
		log.Fatal().Err(err).Msg("Not a usable WAV file")
	}
	log.Info().
		Int("sampleRate", wav.SampleRate).
		Int("channels", wav.Channels).
		Dur("duration", time.Duration(len(wav.Samples))*time.Second/time.Duration(wav.SampleRate)).
		Msg("Loaded WAV file")

	if *upload {
		uploadFile(*serverAddr, *sessionKey, *token, raw)
		return
	}
	stream(*serverAddr, *sessionKey, *token, wav, *wait)
}

func stream(addr, key, token string, wav *audio.WAV, wait time.Duration) {
	u := url.URL{
		Scheme:   "ws",
		Host:     addr,
		Path:     "/ws/audio/" + url.PathEscape(key),
		RawQuery: url.Values{"token": {token}, "rate": {fmt.Sprint(wav.SampleRate)}}.Encode(),
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		log.Fatal().Err(err).Int("status", status).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("url", u.Redacted()).Msg("Connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("Read loop ended")
				}
				return
			}
			if cmd, ok := msg["command"]; ok {
				log.Info().
					Interface("command", cmd).
					Interface("emotion", msg["emotion"]).
					Interface("answer", msg["answer"]).
					Msg("Turn completed")
				continue
			}
			log.Info().Interface("text", msg["text"]).Msg("Interim transcript")
		}
	}()

	pcm := audio.EncodePCM16(wav.Samples)
	chunkSize := wav.SampleRate * 2 * int(chunkInterval/time.Millisecond) / 1000
	start := time.Now()
	var chunks int

	for off := 0; off < len(pcm); off += chunkSize {
		end := min(off+chunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			log.Fatal().Err(err).Msg("Failed to send chunk")
		}
		chunks++
		if chunks%10 == 0 {
			log.Debug().Int("chunks", chunks).Int("bytes", end).Msg("Streaming")
		}
		time.Sleep(chunkInterval)
	}
	log.Info().Int("chunks", chunks).Int("bytes", len(pcm)).Dur("elapsed", time.Since(start)).Msg("Finished streaming")

	select {
	case <-done:
	case <-time.After(wait):
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		<-done
	}
}

func uploadFile(addr, key, token string, raw []byte) {
	endpoint := "http://" + addr + "/v1/sessions/" + url.PathEscape(key) + "/answers"
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build request")
	}
	req.Header.Set("Content-Type", "audio/wav")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	_, _ = body.ReadFrom(resp.Body)
	log.Info().Int("status", resp.StatusCode).RawJSON("result", bytes.TrimSpace(body.Bytes())).Msg("Upload completed")
}
