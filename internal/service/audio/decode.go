// Package audio converts raw network audio into waveforms the inference
// engines can consume.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// BytesPerSample is the width of a PCM16 sample.
	BytesPerSample = 2

	// ProcessingRate is the sample rate both inference engines expect.
	ProcessingRate = 16000

	// MaxSourceRate is the highest client sample rate accepted.
	MaxSourceRate = 192000

	pcmScale = 32768.0
)

// DecodeError reports a malformed PCM16 payload.
type DecodeError struct {
	Length int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("pcm16 payload has odd length %d", e.Length)
}

// UnsupportedRateError reports a sample rate that cannot be converted.
type UnsupportedRateError struct {
	Source int
	Target int
}

func (e *UnsupportedRateError) Error() string {
	return fmt.Sprintf("unsupported sample rate conversion %d Hz -> %d Hz", e.Source, e.Target)
}

// ValidatePCM16 checks that b can be decoded as PCM16 without decoding it.
func ValidatePCM16(b []byte) error {
	if len(b)%BytesPerSample != 0 {
		return &DecodeError{Length: len(b)}
	}
	return nil
}

// DecodePCM16 interprets b as little-endian signed 16-bit mono samples and
// scales them to [-1, 1).
func DecodePCM16(b []byte) ([]float32, error) {
	if err := ValidatePCM16(b); err != nil {
		return nil, err
	}

	out := make([]float32, len(b)/BytesPerSample)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(b[i*2:]))
		out[i] = float32(s) / pcmScale
	}
	return out, nil
}

// EncodePCM16 converts samples back to little-endian PCM16, clamping values
// outside [-1, 1].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := math.Round(float64(s) * pcmScale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
