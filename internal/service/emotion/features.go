package emotion

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FeatureConfig describes the log-mel representation the classifier was
// trained on.
type FeatureConfig struct {
	SampleRate int
	NFFT       int
	HopLength  int
	NMels      int
	MaxFrames  int
	TopDB      float64
}

// DefaultFeatureConfig returns the model's training parameters.
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		SampleRate: 16000,
		NFFT:       2048,
		HopLength:  512,
		NMels:      128,
		MaxFrames:  256,
		TopDB:      80,
	}
}

// Features is a z-scored log-mel spectrogram of fixed shape, stored row-major
// as [mel][frame].
type Features struct {
	Mels   int
	Frames int
	Values []float32
}

// At returns the value for mel band m at frame t.
func (f Features) At(m, t int) float32 {
	return f.Values[m*f.Frames+t]
}

// FeatureExtractor computes log-mel features. The window and mel filterbank
// are shared read-only; each Extract call plans its own FFT, so Extract is
// safe for concurrent use.
type FeatureExtractor struct {
	cfg    FeatureConfig
	window []float64
	bank   [][]float64
}

// NewFeatureExtractor precomputes the analysis window and filterbank.
func NewFeatureExtractor(cfg FeatureConfig) *FeatureExtractor {
	return &FeatureExtractor{
		cfg:    cfg,
		window: hann(cfg.NFFT),
		bank:   melFilterbank(cfg.SampleRate, cfg.NFFT, cfg.NMels),
	}
}

// Config returns the extractor parameters.
func (e *FeatureExtractor) Config() FeatureConfig { return e.cfg }

// Extract converts samples to a Mels x MaxFrames feature matrix: power
// spectrogram, mel projection, decibels relative to the peak, z-score, then
// zero padding or a centered crop along time.
func (e *FeatureExtractor) Extract(samples []float32) Features {
	cfg := e.cfg
	out := Features{Mels: cfg.NMels, Frames: cfg.MaxFrames, Values: make([]float32, cfg.NMels*cfg.MaxFrames)}
	if len(samples) == 0 {
		return out
	}

	mel := e.melSpectrogram(samples)
	frames := len(mel[0])

	// Power to dB, ref = max, clipped to TopDB below the peak.
	peak := math.Inf(-1)
	for m := range mel {
		for t := range mel[m] {
			mel[m][t] = 10 * math.Log10(math.Max(mel[m][t], 1e-10))
			if mel[m][t] > peak {
				peak = mel[m][t]
			}
		}
	}
	floor := peak - cfg.TopDB
	var sum, sumSq float64
	for m := range mel {
		for t := range mel[m] {
			v := math.Max(mel[m][t], floor) - peak
			mel[m][t] = v
			sum += v
			sumSq += v * v
		}
	}

	n := float64(len(mel) * frames)
	mean := sum / n
	std := math.Sqrt(math.Max(sumSq/n-mean*mean, 0))

	// Center crop when longer, zero pad at the end when shorter.
	offset := 0
	if frames > cfg.MaxFrames {
		offset = (frames - cfg.MaxFrames) / 2
	}
	for m := 0; m < cfg.NMels; m++ {
		for t := 0; t < cfg.MaxFrames && offset+t < frames; t++ {
			out.Values[m*cfg.MaxFrames+t] = float32((mel[m][offset+t] - mean) / (std + 1e-6))
		}
	}
	return out
}

// melSpectrogram returns [mel][frame] power values using a centered STFT
// with zero padding of NFFT/2 on both sides.
func (e *FeatureExtractor) melSpectrogram(samples []float32) [][]float64 {
	cfg := e.cfg
	pad := cfg.NFFT / 2
	padded := make([]float64, len(samples)+2*pad)
	for i, s := range samples {
		padded[pad+i] = float64(s)
	}

	frames := 1 + (len(padded)-cfg.NFFT)/cfg.HopLength
	bins := cfg.NFFT/2 + 1

	mel := make([][]float64, cfg.NMels)
	for m := range mel {
		mel[m] = make([]float64, frames)
	}

	fft := fourier.NewFFT(cfg.NFFT)
	frame := make([]float64, cfg.NFFT)
	coeffs := make([]complex128, bins)
	power := make([]float64, bins)

	for t := 0; t < frames; t++ {
		start := t * cfg.HopLength
		for i := range frame {
			frame[i] = padded[start+i] * e.window[i]
		}
		coeffs = fft.Coefficients(coeffs, frame)
		for k, c := range coeffs {
			power[k] = real(c)*real(c) + imag(c)*imag(c)
		}
		for m, weights := range e.bank {
			var acc float64
			for k, w := range weights {
				if w != 0 {
					acc += w * power[k]
				}
			}
			mel[m][t] = acc
		}
	}
	return mel
}

// hann returns a periodic Hann window.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// melFilterbank builds Slaney-style triangular filters with area
// normalization, spanning 0 Hz to Nyquist.
func melFilterbank(sampleRate, nfft, nMels int) [][]float64 {
	bins := nfft/2 + 1
	fftFreqs := make([]float64, bins)
	for k := range fftFreqs {
		fftFreqs[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}

	minMel, maxMel := hzToMel(0), hzToMel(float64(sampleRate)/2)
	melFreqs := make([]float64, nMels+2)
	for i := range melFreqs {
		melFreqs[i] = melToHz(minMel + (maxMel-minMel)*float64(i)/float64(nMels+1))
	}

	bank := make([][]float64, nMels)
	for m := range bank {
		lower, center, upper := melFreqs[m], melFreqs[m+1], melFreqs[m+2]
		norm := 2 / (upper - lower)
		bank[m] = make([]float64, bins)
		for k, f := range fftFreqs {
			left := (f - lower) / (center - lower)
			right := (upper - f) / (upper - center)
			if w := math.Min(left, right); w > 0 {
				bank[m][k] = w * norm
			}
		}
	}
	return bank
}

const (
	melFSP       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSP
)

var melLogStep = math.Log(6.4) / 27

func hzToMel(hz float64) float64 {
	if hz < melMinLogHz {
		return hz / melFSP
	}
	return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
}

func melToHz(mel float64) float64 {
	if mel < melMinLogMel {
		return mel * melFSP
	}
	return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
}
