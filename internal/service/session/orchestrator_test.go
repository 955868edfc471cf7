package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ai-interview-audio-service/internal/models"
	"ai-interview-audio-service/internal/observability/metrics"
	"ai-interview-audio-service/internal/schema"
	"ai-interview-audio-service/internal/service/audio"
	"ai-interview-audio-service/internal/service/buffer"
	"ai-interview-audio-service/internal/service/registry"
	"ai-interview-audio-service/internal/service/segment"
	"ai-interview-audio-service/internal/service/turn"
)

// 3 s of 16 kHz PCM16.
const threshold = 16000 * 2 * 3

type fakeTranscriber struct {
	mu       sync.Mutex
	script   []string
	segments []audio.Segment
	err      error
	panicFor string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, seg audio.Segment, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicFor != "" && strings.HasPrefix(seg.ID(), f.panicFor) {
		panic("engine exploded")
	}
	f.segments = append(f.segments, seg)
	if f.err != nil {
		return "", f.err
	}
	if len(f.script) == 0 {
		return "", nil
	}
	text := f.script[0]
	f.script = f.script[1:]
	return text, nil
}

func (f *fakeTranscriber) calls() []audio.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audio.Segment(nil), f.segments...)
}

type fakeClassifier struct {
	mu    sync.Mutex
	label string
	err   error
	ids   []string
}

func (f *fakeClassifier) Classify(_ context.Context, seg audio.Segment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, seg.ID())
	if f.err != nil {
		return "", f.err
	}
	return f.label, nil
}

func (f *fakeClassifier) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type recordingChannel struct {
	mu       sync.Mutex
	payloads []any
}

func (c *recordingChannel) Send(_ context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *recordingChannel) Close() error { return nil }

func (c *recordingChannel) received() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.payloads...)
}

type fakePublisher struct {
	mu      sync.Mutex
	interim []models.TranscriptInterim
	turns   []models.TurnCompleted
}

func (p *fakePublisher) PublishInterim(_ context.Context, ev models.TranscriptInterim) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interim = append(p.interim, ev)
	return nil
}

func (p *fakePublisher) PublishTurn(_ context.Context, ev models.TurnCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, ev)
	return nil
}

type harness struct {
	orch      *Orchestrator
	reg       *registry.Registry
	stt       *fakeTranscriber
	emo       *fakeClassifier
	publisher *fakePublisher
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T, cfg Config, script ...string) *harness {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h := &harness{
		reg:       registry.New(m),
		stt:       &fakeTranscriber{script: script},
		emo:       &fakeClassifier{label: "happy"},
		publisher: &fakePublisher{},
		metrics:   m,
	}
	h.orch = New(cfg, Deps{
		Transcriber: h.stt,
		Classifier:  h.emo,
		Detector:    turn.New(nil, nil),
		Pusher:      h.reg,
		Publisher:   h.publisher,
		Validator:   schema.New(m),
		Metrics:     m,
	})
	return h
}

// open starts a 16 kHz session with a recording channel attached.
func (h *harness) open(t *testing.T, key string) (*Session, *recordingChannel) {
	t.Helper()
	sess, err := h.orch.Open(key, OpenOptions{SourceRate: audio.ProcessingRate})
	if err != nil {
		t.Fatalf("open %s: %v", key, err)
	}
	ch := &recordingChannel{}
	h.reg.Connect(key, ch)
	return sess, ch
}

func pcm(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func TestHandleChunk_FlushesOnlyAtThreshold(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "I was the team lead")
	sess, ch := h.open(t, "sess-1")
	ctx := context.Background()

	chunk := pcm(30000)
	for i := 0; i < 3; i++ {
		if err := h.orch.HandleChunk(ctx, sess, chunk); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
	}
	if n := len(h.stt.calls()); n != 0 {
		t.Fatalf("expected no transcription below threshold, got %d", n)
	}
	if sess.Buffered() != 90000 {
		t.Fatalf("expected 90000 buffered bytes, got %d", sess.Buffered())
	}

	if err := h.orch.HandleChunk(ctx, sess, chunk); err != nil {
		t.Fatalf("fourth chunk: %v", err)
	}

	calls := h.stt.calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one transcription, got %d", len(calls))
	}
	if calls[0].Len() != 120000/2 {
		t.Errorf("expected segment of %d samples, got %d", 120000/2, calls[0].Len())
	}
	if sess.Buffered() != 0 {
		t.Errorf("expected empty buffer after flush, got %d", sess.Buffered())
	}

	got := ch.received()
	if len(got) != 1 {
		t.Fatalf("expected one push, got %d", len(got))
	}
	if got[0] != (models.InterimResult{Text: "I was the team lead"}) {
		t.Errorf("unexpected interim payload %#v", got[0])
	}
	if sess.State() != segment.StateAwaitingData {
		t.Errorf("expected AWAITING_DATA, got %s", sess.State())
	}
}

func TestHandleChunk_EndOfTurn(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "I think I did well, that's all")
	sess, ch := h.open(t, "sess-1")

	if err := h.orch.HandleChunk(context.Background(), sess, pcm(threshold)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := ch.received()
	if len(got) != 2 {
		t.Fatalf("expected interim and turn pushes, got %d", len(got))
	}
	if got[0] != (models.InterimResult{Text: "I think I did well, that's all"}) {
		t.Errorf("unexpected interim payload %#v", got[0])
	}
	want := models.TurnResult{Command: models.CommandNextQuestion, Emotion: "happy", Answer: "I think I did well"}
	if got[1] != want {
		t.Errorf("expected %#v, got %#v", want, got[1])
	}

	classified := h.emo.calls()
	transcribed := h.stt.calls()
	if len(classified) != 1 || classified[0] != transcribed[0].ID() {
		t.Errorf("expected one classification of %s, got %v", transcribed[0].ID(), classified)
	}

	if sess.State() != segment.StateDelivered || sess.Turns() != 1 {
		t.Errorf("expected DELIVERED after turn 1, got %s turn %d", sess.State(), sess.Turns())
	}

	if len(h.publisher.interim) != 1 || len(h.publisher.turns) != 1 {
		t.Fatalf("expected one interim and one turn event, got %d and %d", len(h.publisher.interim), len(h.publisher.turns))
	}
	ev := h.publisher.turns[0]
	if ev.SessionKey != "sess-1" || ev.Answer != "I think I did well" || ev.Turn != 1 || ev.SegmentID != transcribed[0].ID() {
		t.Errorf("unexpected turn event %+v", ev)
	}
	if n := testutil.ToFloat64(h.metrics.TurnsCompleted); n != 1 {
		t.Errorf("expected 1 completed turn recorded, got %v", n)
	}
}

func TestHandleChunk_RetainsFragmentsUntilEnd(t *testing.T) {
	tests := []struct {
		name   string
		retain bool
		want   string
	}{
		{"retained", true, "I designed the cache and then I load tested it"},
		{"discarded", false, "and then I load tested it"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RetainTranscript = tt.retain
			h := newHarness(t, cfg, "I designed the cache", "", "and then I load tested it. I'm done.")
			sess, ch := h.open(t, "sess-1")

			for i := 0; i < 3; i++ {
				if err := h.orch.HandleChunk(context.Background(), sess, pcm(threshold)); err != nil {
					t.Fatalf("cycle %d: %v", i, err)
				}
			}

			got := ch.received()
			if len(got) != 4 {
				t.Fatalf("expected three interims and one turn, got %d pushes", len(got))
			}
			if got[1] != (models.InterimResult{Text: ""}) {
				t.Errorf("expected empty interim for silent cycle, got %#v", got[1])
			}
			turnResult, ok := got[3].(models.TurnResult)
			if !ok {
				t.Fatalf("expected TurnResult last, got %T", got[3])
			}
			if turnResult.Answer != tt.want {
				t.Errorf("expected answer %q, got %q", tt.want, turnResult.Answer)
			}
		})
	}
}

func TestHandleChunk_FragmentsResetAfterTurn(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "first answer, that's all", "second answer, thank you")
	sess, ch := h.open(t, "sess-1")

	for i := 0; i < 2; i++ {
		if err := h.orch.HandleChunk(context.Background(), sess, pcm(threshold)); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	got := ch.received()
	last, ok := got[len(got)-1].(models.TurnResult)
	if !ok || last.Answer != "second answer" {
		t.Errorf("expected second answer alone, got %#v", got[len(got)-1])
	}
	if sess.Turns() != 2 {
		t.Errorf("expected 2 turns, got %d", sess.Turns())
	}
}

func TestHandleChunk_DropsMalformedChunk(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	sess, _ := h.open(t, "sess-1")
	ctx := context.Background()

	if err := h.orch.HandleChunk(ctx, sess, pcm(100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := h.orch.HandleChunk(ctx, sess, pcm(101))
	var decodeErr *audio.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *audio.DecodeError, got %v", err)
	}
	if sess.Buffered() != 100 {
		t.Errorf("malformed chunk must not be buffered, got %d bytes", sess.Buffered())
	}

	if err := h.orch.HandleChunk(ctx, sess, pcm(100)); err != nil {
		t.Errorf("session should continue after a malformed chunk, got %v", err)
	}
	if n := testutil.ToFloat64(h.metrics.ChunksDropped.WithLabelValues("decode")); n != 1 {
		t.Errorf("expected 1 dropped chunk recorded, got %v", n)
	}
}

func TestHandleChunk_BufferFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBufferBytes = 1000
	h := newHarness(t, cfg)
	sess, _ := h.open(t, "sess-1")

	err := h.orch.HandleChunk(context.Background(), sess, pcm(1002))
	if !errors.Is(err, buffer.ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
	if sess.Closed() {
		t.Error("session should survive a dropped chunk")
	}
}

func TestHandleChunk_EngineFailures(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.stt.err = errors.New("speech engine down")
	sess, ch := h.open(t, "sess-1")

	if err := h.orch.HandleChunk(context.Background(), sess, pcm(threshold)); err != nil {
		t.Fatalf("transcription failure must not fail the cycle: %v", err)
	}
	got := ch.received()
	if len(got) != 1 || got[0] != (models.InterimResult{Text: ""}) {
		t.Fatalf("expected a single empty interim, got %#v", got)
	}

	h.stt.err = nil
	h.stt.script = []string{"ok, that's it"}
	h.emo.err = errors.New("model server down")

	if err := h.orch.HandleChunk(context.Background(), sess, pcm(threshold)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got = ch.received()
	last, ok := got[len(got)-1].(models.TurnResult)
	if !ok || last.Emotion != "unknown" || last.Answer != "ok" {
		t.Errorf("expected unknown emotion with answer ok, got %#v", got[len(got)-1])
	}
}

func TestHandleChunk_PanicIsolatedToSession(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "hello from b", "hello again from a")
	h.stt.panicFor = "sess-a"
	a, _ := h.open(t, "sess-a")
	b, chB := h.open(t, "sess-b")
	ctx := context.Background()

	err := h.orch.HandleChunk(ctx, a, pcm(threshold))
	if !errors.Is(err, ErrCycleFault) {
		t.Fatalf("expected ErrCycleFault, got %v", err)
	}
	if a.State() != segment.StateAwaitingData || a.Buffered() != 0 {
		t.Errorf("expected faulted session reset, got %s with %d bytes", a.State(), a.Buffered())
	}

	if err := h.orch.HandleChunk(ctx, b, pcm(threshold)); err != nil {
		t.Fatalf("other session affected: %v", err)
	}
	if got := chB.received(); len(got) != 1 {
		t.Errorf("expected other session to receive its interim, got %d pushes", len(got))
	}

	h.stt.mu.Lock()
	h.stt.panicFor = ""
	h.stt.mu.Unlock()
	if err := h.orch.HandleChunk(ctx, a, pcm(threshold)); err != nil {
		t.Errorf("faulted session should recover on the next cycle, got %v", err)
	}
	if n := testutil.ToFloat64(h.metrics.CycleFaults); n != 1 {
		t.Errorf("expected 1 cycle fault recorded, got %v", n)
	}
}

func TestOpen_UnsupportedRate(t *testing.T) {
	small := DefaultConfig()
	small.MaxBufferBytes = 1 << 20

	tests := []struct {
		name string
		cfg  Config
		rate int
	}{
		{"zero", DefaultConfig(), 0},
		{"negative", DefaultConfig(), -1},
		{"above ceiling", DefaultConfig(), 100_000_000},
		{"just above ceiling", DefaultConfig(), audio.MaxSourceRate + 1},
		{"threshold above buffer cap", small, 192000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.cfg)

			_, err := h.orch.Open("sess-1", OpenOptions{SourceRate: tt.rate})
			var rateErr *audio.UnsupportedRateError
			if !errors.As(err, &rateErr) {
				t.Fatalf("expected *audio.UnsupportedRateError, got %v", err)
			}
			if h.orch.Len() != 0 {
				t.Error("rejected session must not be registered")
			}
		})
	}
}

func TestOpen_MaxSourceRateFlushes(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "high rate")
	sess, err := h.orch.Open("sess-192k", OpenOptions{SourceRate: audio.MaxSourceRate})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := h.orch.HandleChunk(context.Background(), sess, pcm(audio.MaxSourceRate*2*3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(h.stt.calls()); n != 1 {
		t.Errorf("expected one transcription, got %d", n)
	}
}

func TestHandleChunk_ResamplesToProcessingRate(t *testing.T) {
	h := newHarness(t, DefaultConfig(), "resampled")
	sess, err := h.orch.Open("sess-48k", OpenOptions{SourceRate: 48000})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := h.orch.HandleChunk(context.Background(), sess, pcm(48000*2*3)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := h.stt.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one transcription, got %d", len(calls))
	}
	if calls[0].SampleRate() != audio.ProcessingRate || calls[0].Len() != 48000 {
		t.Errorf("expected 48000 samples at 16 kHz, got %d at %d", calls[0].Len(), calls[0].SampleRate())
	}
}

func TestRelease(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	sess, _ := h.open(t, "sess-1")
	ctx := context.Background()

	_ = h.orch.HandleChunk(ctx, sess, pcm(100))
	h.orch.Release(sess)
	h.orch.Release(sess)

	if _, ok := h.orch.Get("sess-1"); ok {
		t.Error("released session still registered")
	}
	if sess.State() != segment.StateClosed || sess.Buffered() != 0 {
		t.Errorf("expected closed empty session, got %s with %d bytes", sess.State(), sess.Buffered())
	}
	if err := h.orch.HandleChunk(ctx, sess, pcm(100)); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if n := testutil.ToFloat64(h.metrics.SessionsActive); n != 0 {
		t.Errorf("expected no active sessions, got %v", n)
	}
}

func TestOpen_ReplacesExistingSession(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	old, _ := h.open(t, "sess-1")
	current, _ := h.open(t, "sess-1")

	if !old.Closed() {
		t.Error("replaced session should be closed")
	}

	h.orch.Release(old)
	got, ok := h.orch.Get("sess-1")
	if !ok || got != current {
		t.Fatal("releasing the replaced session evicted its successor")
	}
	if n := testutil.ToFloat64(h.metrics.SessionsActive); n != 1 {
		t.Errorf("expected 1 active session, got %v", n)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	sess, _ := h.open(t, "sess-1")
	_ = h.orch.HandleChunk(context.Background(), sess, pcm(640))

	st, ok := h.orch.Status("sess-1")
	if !ok {
		t.Fatal("expected status for live session")
	}
	want := models.SessionStatus{SessionKey: "sess-1", State: "ACCUMULATING", BufferedBytes: 640, SourceRate: 16000}
	if st != want {
		t.Errorf("expected %+v, got %+v", want, st)
	}
	if _, ok := h.orch.Status("missing"); ok {
		t.Error("expected no status for unknown session")
	}
}

func TestProcessUpload(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		live     bool
		wantEnd  bool
		wantAns  string
		wantPush int
	}{
		{"complete answer to live session", "We shipped on time. Thank you.", true, true, "We shipped on time", 1},
		{"partial answer without session", "We shipped on time", false, false, "We shipped on time", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, DefaultConfig(), tt.text)
			var ch *recordingChannel
			if tt.live {
				_, ch = h.open(t, "sess-1")
			}

			samples := make([]float32, audio.ProcessingRate)
			seg := audio.NewSegment(h.orch.NextSegmentID("sess-1"), samples, audio.ProcessingRate)
			res, err := h.orch.ProcessUpload(context.Background(), "sess-1", seg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			want := models.UploadResult{
				SessionKey:  "sess-1",
				Text:        tt.text,
				Emotion:     "happy",
				EndDetected: tt.wantEnd,
				Answer:      tt.wantAns,
				DurationMs:  1000,
			}
			if res != want {
				t.Errorf("expected %+v, got %+v", want, res)
			}
			if n := len(h.emo.calls()); n != 1 {
				t.Errorf("expected emotion always classified, got %d calls", n)
			}
			if ch != nil && len(ch.received()) != tt.wantPush {
				t.Errorf("expected %d pushes, got %d", tt.wantPush, len(ch.received()))
			}
		})
	}
}

func TestHandleChunk_ConcurrentSessions(t *testing.T) {
	const sessions = 8
	script := make([]string, sessions)
	for i := range script {
		script[i] = "answer, that's all"
	}
	h := newHarness(t, DefaultConfig(), script...)

	channels := make([]*recordingChannel, sessions)
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		sess, ch := h.open(t, fmt.Sprintf("sess-%d", i))
		channels[i] = ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunk := pcm(threshold / 4)
			for j := 0; j < 4; j++ {
				if err := h.orch.HandleChunk(context.Background(), sess, chunk); err != nil {
					t.Errorf("%s: %v", sess.Key(), err)
				}
			}
		}()
	}
	wg.Wait()

	for i, ch := range channels {
		got := ch.received()
		if len(got) != 2 {
			t.Errorf("session %d: expected 2 pushes, got %d", i, len(got))
			continue
		}
		if _, ok := got[0].(models.InterimResult); !ok {
			t.Errorf("session %d: interim must precede the turn result, got %T first", i, got[0])
		}
	}
	if n := len(h.stt.calls()); n != sessions {
		t.Errorf("expected %d transcriptions, got %d", sessions, n)
	}
}
