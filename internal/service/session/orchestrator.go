// Package session runs the per-connection audio pipeline: buffer incoming
// PCM, flush it into segments, transcribe, detect the end of an answer,
// classify vocal emotion and push results back to the client.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ai-interview-audio-service/internal/models"
	"ai-interview-audio-service/internal/observability/logging"
	"ai-interview-audio-service/internal/observability/metrics"
	"ai-interview-audio-service/internal/service/audio"
	"ai-interview-audio-service/internal/service/buffer"
	"ai-interview-audio-service/internal/service/emotion"
	"ai-interview-audio-service/internal/service/segment"
	"ai-interview-audio-service/internal/service/turn"
)

var (
	// ErrSessionClosed is returned for chunks arriving after Release.
	ErrSessionClosed = segment.ErrSessionClosed
	// ErrCycleFault is returned when a processing cycle panicked.
	ErrCycleFault = errors.New("session cycle fault")
)

// Transcriber turns a segment into text. Failures are reported as "".
type Transcriber interface {
	Transcribe(ctx context.Context, seg audio.Segment, languageHint string) (string, error)
}

// Classifier labels the vocal emotion of a segment.
type Classifier interface {
	Classify(ctx context.Context, seg audio.Segment) (string, error)
}

// Pusher delivers a payload to whoever holds the session's connection.
type Pusher interface {
	Send(ctx context.Context, key string, payload any) bool
}

// EventPublisher hands transcripts and finished answers downstream.
type EventPublisher interface {
	PublishInterim(ctx context.Context, ev models.TranscriptInterim) error
	PublishTurn(ctx context.Context, ev models.TurnCompleted) error
}

// PayloadValidator checks outbound payloads.
type PayloadValidator interface {
	Validate(payload any) error
}

// Config holds orchestrator settings.
type Config struct {
	TargetRate       int
	MinSeconds       float64
	MaxBufferBytes   int
	RetainTranscript bool
	LanguageCode     string
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		TargetRate:       audio.ProcessingRate,
		MinSeconds:       buffer.DefaultMinSeconds,
		MaxBufferBytes:   5 * 1024 * 1024,
		RetainTranscript: true,
		LanguageCode:     "en-US",
	}
}

// Deps are the collaborators injected into the orchestrator. Publisher,
// Validator and Metrics are optional.
type Deps struct {
	Transcriber Transcriber
	Classifier  Classifier
	Detector    *turn.Detector
	Pusher      Pusher
	Publisher   EventPublisher
	Validator   PayloadValidator
	Metrics     *metrics.Metrics
}

// Orchestrator owns every live session.
type Orchestrator struct {
	cfg      Config
	deps     Deps
	segments *segment.Generator

	mu       sync.RWMutex
	sessions map[string]*Session

	now func() time.Time
}

// New creates an orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	def := DefaultConfig()
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = def.TargetRate
	}
	if cfg.MinSeconds <= 0 {
		cfg.MinSeconds = def.MinSeconds
	}
	if deps.Detector == nil {
		deps.Detector = turn.New(nil, nil)
	}
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		segments: segment.New(),
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// OpenOptions describe the client side of a new session.
type OpenOptions struct {
	SourceRate int
}

// Open creates the session for key. An existing session under the same key
// is closed and replaced.
func (o *Orchestrator) Open(key string, opts OpenOptions) (*Session, error) {
	if opts.SourceRate <= 0 || opts.SourceRate > audio.MaxSourceRate {
		return nil, &audio.UnsupportedRateError{Source: opts.SourceRate, Target: o.cfg.TargetRate}
	}
	// A threshold above the cap could never be reached.
	if o.cfg.MaxBufferBytes > 0 && buffer.ThresholdBytes(opts.SourceRate, o.cfg.MinSeconds) > o.cfg.MaxBufferBytes {
		return nil, &audio.UnsupportedRateError{Source: opts.SourceRate, Target: o.cfg.TargetRate}
	}

	sess := &Session{
		key:        key,
		sourceRate: opts.SourceRate,
		buf:        buffer.New(opts.SourceRate, o.cfg.MinSeconds, o.cfg.MaxBufferBytes),
		lc:         segment.NewLifecycle(key),
		opened:     o.now(),
	}

	o.mu.Lock()
	prev := o.sessions[key]
	o.sessions[key] = sess
	o.mu.Unlock()

	if prev != nil && prev.close() {
		o.deps.Metrics.RecordSessionClosed()
		log.Info().Str("sessionKey", key).Msg("Replaced existing session")
	}

	o.deps.Metrics.RecordSessionOpened()
	logging.WithSession(key).Info().
		Int("sourceRateHz", opts.SourceRate).
		Int("targetRateHz", o.cfg.TargetRate).
		Int("flushBytes", sess.buf.Threshold()).
		Msg("Session opened")
	return sess, nil
}

// Release closes sess and forgets it if it is still the live session for
// its key. Safe to call more than once.
func (o *Orchestrator) Release(sess *Session) {
	if sess == nil {
		return
	}

	o.mu.Lock()
	if o.sessions[sess.key] == sess {
		delete(o.sessions, sess.key)
	}
	o.mu.Unlock()

	if sess.close() {
		o.deps.Metrics.RecordSessionClosed()
		logging.WithSession(sess.key).Info().
			Int("turns", sess.lc.Turn()).
			Dur("duration", o.now().Sub(sess.opened)).
			Msg("Session closed")
	}
}

// Get returns the live session for key.
func (o *Orchestrator) Get(key string) (*Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	sess, ok := o.sessions[key]
	return sess, ok
}

// Status describes the live session for key.
func (o *Orchestrator) Status(key string) (models.SessionStatus, bool) {
	sess, ok := o.Get(key)
	if !ok {
		return models.SessionStatus{}, false
	}
	return models.SessionStatus{
		SessionKey:    sess.key,
		State:         sess.lc.State().String(),
		BufferedBytes: sess.buf.Len(),
		SourceRate:    sess.sourceRate,
		Turns:         sess.lc.Turn(),
	}, true
}

// Len returns the number of live sessions.
func (o *Orchestrator) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}

// CloseAll releases every live session.
func (o *Orchestrator) CloseAll() {
	o.mu.RLock()
	all := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		all = append(all, s)
	}
	o.mu.RUnlock()

	for _, s := range all {
		o.Release(s)
	}
}

// HandleChunk feeds one network frame into sess. A malformed frame returns
// *audio.DecodeError and a full buffer returns buffer.ErrBufferFull; in both
// cases the frame is dropped and the session stays usable. When the frame
// brings the buffer to its threshold a full cycle runs before returning.
func (o *Orchestrator) HandleChunk(ctx context.Context, sess *Session, data []byte) (err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.lc.IsClosed() {
		return ErrSessionClosed
	}
	defer o.recoverCycle(sess, &err)

	if err := audio.ValidatePCM16(data); err != nil {
		o.deps.Metrics.RecordChunkDropped("decode")
		logging.WithSession(sess.key).Warn().Err(err).Msg("Dropping malformed audio chunk")
		return err
	}
	if err := sess.lc.Receive(); err != nil {
		return err
	}
	if err := sess.buf.Append(data); err != nil {
		o.deps.Metrics.RecordChunkDropped("buffer_full")
		logging.WithSession(sess.key).Warn().Err(err).
			Int("buffered", sess.buf.Len()).
			Msg("Dropping audio chunk")
		return err
	}
	o.deps.Metrics.RecordAudioReceived(len(data))

	if !sess.buf.ShouldFlush() {
		return nil
	}
	return o.flush(ctx, sess)
}

// flush must be called with sess.mu held.
func (o *Orchestrator) flush(ctx context.Context, sess *Session) error {
	pcm := sess.buf.SnapshotAndReset()
	if err := sess.lc.BeginFlush(); err != nil {
		return err
	}

	seg, err := audio.SegmentFromPCM(o.segments.Next(sess.key), pcm, sess.sourceRate, o.cfg.TargetRate)
	if err != nil {
		sess.lc.Abort()
		return fmt.Errorf("build segment: %w", err)
	}
	o.deps.Metrics.RecordSegmentFlushed(seg.Duration().Seconds())

	if err := sess.lc.BeginTranscribe(); err != nil {
		return err
	}
	return o.runCycle(ctx, sess, seg)
}

// runCycle must be called with sess.mu held and the lifecycle in TRANSCRIBING.
func (o *Orchestrator) runCycle(ctx context.Context, sess *Session, seg audio.Segment) error {
	logger := logging.WithSegment(sess.key, seg.ID())

	text := o.transcribe(ctx, seg)
	o.push(ctx, sess.key, models.InterimResult{Text: text})
	o.publishInterim(ctx, sess.key, seg.ID(), text)

	if !o.deps.Detector.IsEndOfTurn(text) {
		if o.cfg.RetainTranscript && text != "" {
			sess.fragments = append(sess.fragments, text)
		}
		logger.Debug().
			Str("text", text).
			Int("retained", len(sess.fragments)).
			Msg("Cycle complete, answer continues")
		return sess.lc.NotEnd()
	}

	if err := sess.lc.EndDetected(); err != nil {
		return err
	}
	if err := sess.lc.BeginClassify(); err != nil {
		return err
	}

	label := o.classify(ctx, seg)
	answer := o.deps.Detector.StripEndPhrase(strings.Join(append(sess.fragments, text), " "))
	sess.fragments = nil

	o.push(ctx, sess.key, models.TurnResult{
		Command: models.CommandNextQuestion,
		Emotion: label,
		Answer:  answer,
	})
	if err := sess.lc.Deliver(); err != nil {
		return err
	}

	o.deps.Metrics.RecordTurnCompleted(label)
	o.publishTurn(ctx, sess.key, seg.ID(), sess.lc.Turn(), answer, label)

	logger.Info().
		Str("emotion", label).
		Str("matched", o.deps.Detector.MatchedPhrase(text)).
		Int("turn", sess.lc.Turn()).
		Msg("End of turn delivered")
	return nil
}

// ProcessUpload runs a complete recorded answer through transcription, end
// detection and classification in one pass. Emotion is always classified.
// When key has a live session the result is also pushed to it, and the work
// is serialized with that session's cycles.
func (o *Orchestrator) ProcessUpload(ctx context.Context, key string, seg audio.Segment) (result models.UploadResult, err error) {
	if sess, ok := o.Get(key); ok {
		sess.mu.Lock()
		defer sess.mu.Unlock()
	}
	defer func() {
		if r := recover(); r != nil {
			o.deps.Metrics.RecordCycleFault()
			log.Error().
				Str("sessionKey", key).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Upload processing panicked")
			err = ErrCycleFault
		}
	}()

	text := o.transcribe(ctx, seg)
	end := o.deps.Detector.IsEndOfTurn(text)
	label := o.classify(ctx, seg)

	answer := strings.TrimSpace(text)
	if end {
		answer = o.deps.Detector.StripEndPhrase(text)
	}

	result = models.UploadResult{
		SessionKey:  key,
		Text:        text,
		Emotion:     label,
		EndDetected: end,
		Answer:      answer,
		DurationMs:  seg.Duration().Milliseconds(),
	}
	if err := o.validate(result); err != nil {
		return models.UploadResult{}, err
	}

	if _, live := o.Get(key); live {
		o.push(ctx, key, result)
	}
	o.publishTurn(ctx, key, seg.ID(), 0, answer, label)

	logging.WithSegment(key, seg.ID()).Info().
		Str("emotion", label).
		Bool("endDetected", end).
		Int64("durationMs", result.DurationMs).
		Msg("Upload processed")
	return result, nil
}

// NextSegmentID issues a segment ID for key.
func (o *Orchestrator) NextSegmentID(key string) string {
	return o.segments.Next(key)
}

func (o *Orchestrator) transcribe(ctx context.Context, seg audio.Segment) string {
	text, err := o.deps.Transcriber.Transcribe(ctx, seg, o.cfg.LanguageCode)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (o *Orchestrator) classify(ctx context.Context, seg audio.Segment) string {
	label, err := o.deps.Classifier.Classify(ctx, seg)
	if err != nil || label == "" {
		return emotion.UnknownLabel
	}
	return label
}

func (o *Orchestrator) push(ctx context.Context, key string, payload any) {
	if o.deps.Pusher == nil {
		return
	}
	if err := o.validate(payload); err != nil {
		return
	}
	o.deps.Pusher.Send(ctx, key, payload)
}

func (o *Orchestrator) validate(payload any) error {
	if o.deps.Validator == nil {
		return nil
	}
	return o.deps.Validator.Validate(payload)
}

func (o *Orchestrator) publishInterim(ctx context.Context, key, segmentID, text string) {
	if o.deps.Publisher == nil {
		return
	}
	ev := models.TranscriptInterim{
		EventType:  models.EventTranscriptInterim,
		SessionKey: key,
		SegmentID:  segmentID,
		Timestamp:  o.now().UnixMilli(),
		Text:       text,
	}
	if o.validate(ev) != nil {
		return
	}
	if err := o.deps.Publisher.PublishInterim(ctx, ev); err != nil {
		logging.WithSegment(key, segmentID).Warn().Err(err).Msg("Failed to publish interim transcript")
	}
}

func (o *Orchestrator) publishTurn(ctx context.Context, key, segmentID string, turnNo int, answer, label string) {
	if o.deps.Publisher == nil {
		return
	}
	ev := models.TurnCompleted{
		EventType:  models.EventTurnCompleted,
		SessionKey: key,
		SegmentID:  segmentID,
		Timestamp:  o.now().UnixMilli(),
		Turn:       turnNo,
		Answer:     answer,
		Emotion:    label,
	}
	if o.validate(ev) != nil {
		return
	}
	if err := o.deps.Publisher.PublishTurn(ctx, ev); err != nil {
		logging.WithSegment(key, segmentID).Warn().Err(err).Msg("Failed to publish completed turn")
	}
}

// recoverCycle turns a panic in one session's cycle into ErrCycleFault and
// returns the session to AWAITING_DATA with an empty buffer.
func (o *Orchestrator) recoverCycle(sess *Session, err *error) {
	r := recover()
	if r == nil {
		return
	}
	sess.buf.Reset()
	sess.lc.Abort()
	o.deps.Metrics.RecordCycleFault()
	logging.WithSession(sess.key).Error().
		Interface("panic", r).
		Bytes("stack", debug.Stack()).
		Msg("Session cycle panicked")
	*err = ErrCycleFault
}
