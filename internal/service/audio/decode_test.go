package audio

import (
	"errors"
	"math"
	"testing"
)

func TestDecodePCM16_Lengths(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantLen int
	}{
		{"empty", []byte{}, 0},
		{"one sample", []byte{0x00, 0x00}, 1},
		{"three samples", make([]byte, 6), 3},
		{"3s at 48kHz", make([]byte, 48000*2*3), 48000 * 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePCM16(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("expected %d samples, got %d", tt.wantLen, len(got))
			}
		})
	}
}

func TestDecodePCM16_Values(t *testing.T) {
	// 0, 16384, -32768, 32767 little-endian
	input := []byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x80, 0xff, 0x7f}

	got, err := DecodePCM16(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float32{0, 0.5, -1, 32767.0 / 32768.0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestDecodePCM16_Range(t *testing.T) {
	input := make([]byte, 0, 65536*2)
	for v := math.MinInt16; v <= math.MaxInt16; v++ {
		u := uint16(int16(v))
		input = append(input, byte(u), byte(u>>8))
	}

	got, err := DecodePCM16(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range got {
		if s < -1 || s >= 1 {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
	}
}

func TestDecodePCM16_OddLength(t *testing.T) {
	for _, n := range []int{1, 3, 4801} {
		_, err := DecodePCM16(make([]byte, n))

		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("length %d: expected DecodeError, got %v", n, err)
		}
		if decodeErr.Length != n {
			t.Errorf("expected length %d in error, got %d", n, decodeErr.Length)
		}
	}
}

func TestEncodePCM16_RoundTrip(t *testing.T) {
	input := []byte{0x00, 0x00, 0x34, 0x12, 0xcc, 0xed, 0xff, 0x7f, 0x00, 0x80}

	samples, err := DecodePCM16(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := EncodePCM16(samples)
	if string(got) != string(input) {
		t.Errorf("round trip mismatch: %v != %v", got, input)
	}
}

func TestEncodePCM16_Clamps(t *testing.T) {
	got, err := DecodePCM16(EncodePCM16([]float32{2, -2}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != 32767.0/32768.0 {
		t.Errorf("expected positive clamp, got %v", got[0])
	}
	if got[1] != -1 {
		t.Errorf("expected negative clamp, got %v", got[1])
	}
}
