package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	wavHeaderSize       = 44
)

// ErrInvalidWAV is returned for files that are not RIFF/WAVE PCM16.
var ErrInvalidWAV = errors.New("invalid wav file")

// WAV is a decoded PCM16 WAV file down-mixed to mono.
type WAV struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// ParseWAV reads a RIFF/WAVE file with 16-bit PCM data. Unknown chunks such as
// LIST are skipped and multichannel audio is averaged to mono.
func ParseWAV(r io.Reader) (*WAV, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		format, channels, bits uint16
		sampleRate             uint32
		haveFmt                bool
		pcm                    []byte
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			// Streaming writers sometimes leave the data size unset.
			if id != "data" {
				return nil, fmt.Errorf("%w: chunk %q overruns file", ErrInvalidWAV, id)
			}
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format = binary.LittleEndian.Uint16(data[body:])
			channels = binary.LittleEndian.Uint16(data[body+2:])
			sampleRate = binary.LittleEndian.Uint32(data[body+4:])
			bits = binary.LittleEndian.Uint16(data[body+14:])
			haveFmt = true
		case "data":
			pcm = data[body:end]
		}

		if pcm != nil && haveFmt {
			break
		}
		// Chunks are word aligned.
		pos = end + size%2
	}

	if !haveFmt {
		return nil, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}
	if pcm == nil {
		return nil, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	}
	if format != wavFormatPCM && format != wavFormatExtensible {
		return nil, fmt.Errorf("%w: unsupported format tag %d", ErrInvalidWAV, format)
	}
	if bits != 16 {
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bits)
	}
	if channels == 0 || sampleRate == 0 {
		return nil, fmt.Errorf("%w: zero channels or sample rate", ErrInvalidWAV)
	}

	frameSize := int(channels) * BytesPerSample
	pcm = pcm[:len(pcm)-len(pcm)%frameSize]
	interleaved, err := DecodePCM16(pcm)
	if err != nil {
		return nil, err
	}

	return &WAV{
		SampleRate: int(sampleRate),
		Channels:   int(channels),
		Samples:    downmix(interleaved, int(channels)),
	}, nil
}

func downmix(interleaved []float32, channels int) []float32 {
	if channels == 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// EncodeWAV wraps raw PCM16 data in a canonical 44-byte WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavFormatPCM))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
