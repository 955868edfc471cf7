package audio

import "time"

// Segment is an immutable mono waveform handed to the inference engines.
// It owns its sample storage; accessors return copies.
type Segment struct {
	id         string
	samples    []float32
	sampleRate int
}

// NewSegment copies samples into a new Segment.
func NewSegment(id string, samples []float32, sampleRate int) Segment {
	s := make([]float32, len(samples))
	copy(s, samples)
	return Segment{id: id, samples: s, sampleRate: sampleRate}
}

// SegmentFromPCM decodes a PCM16 snapshot captured at sourceRate and resamples
// it to targetRate.
func SegmentFromPCM(id string, pcm []byte, sourceRate, targetRate int) (Segment, error) {
	decoded, err := DecodePCM16(pcm)
	if err != nil {
		return Segment{}, err
	}
	resampled, err := Resample(decoded, sourceRate, targetRate)
	if err != nil {
		return Segment{}, err
	}
	// Resample already returned fresh storage.
	return Segment{id: id, samples: resampled, sampleRate: targetRate}, nil
}

// ID returns the segment identifier.
func (s Segment) ID() string { return s.id }

// SampleRate returns the sample rate in Hz.
func (s Segment) SampleRate() int { return s.sampleRate }

// Len returns the number of samples.
func (s Segment) Len() int { return len(s.samples) }

// Samples returns a copy of the waveform.
func (s Segment) Samples() []float32 {
	out := make([]float32, len(s.samples))
	copy(out, s.samples)
	return out
}

// PCM16 returns the waveform encoded as little-endian PCM16.
func (s Segment) PCM16() []byte {
	return EncodePCM16(s.samples)
}

// WAV returns the waveform as a mono PCM16 WAV file.
func (s Segment) WAV() []byte {
	return EncodeWAV(s.PCM16(), s.sampleRate, 1)
}

// Duration returns the playback length of the segment.
func (s Segment) Duration() time.Duration {
	if s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.samples)) * time.Second / time.Duration(s.sampleRate)
}
