package audio

import "math"

const (
	kaiserBeta      = 5.0
	filterHalfWidth = 10
)

// Resample converts samples from sourceRate to targetRate using rational
// polyphase filtering. The rates are reduced by their GCD, the signal is
// conceptually upsampled by up, low-pass filtered with a Kaiser-windowed sinc
// and decimated by down. The output has ceil(len*up/down) samples.
//
// Equal rates return a copy of the input.
func Resample(samples []float32, sourceRate, targetRate int) ([]float32, error) {
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, &UnsupportedRateError{Source: sourceRate, Target: targetRate}
	}
	if sourceRate == targetRate || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}

	g := gcd(sourceRate, targetRate)
	up, down := targetRate/g, sourceRate/g

	maxRate := up
	if down > maxRate {
		maxRate = down
	}
	halfLen := filterHalfWidth * maxRate
	h := lowpass(halfLen, 1/float64(maxRate), float64(up))

	n := len(samples)
	outLen := (n*up + down - 1) / down
	out := make([]float32, outLen)

	for m := 0; m < outLen; m++ {
		// Position of output sample m on the upsampled grid.
		c := m * down
		lo := c - halfLen
		if lo < 0 {
			lo = 0
		}
		// First upsampled index at or after lo that carries a real sample.
		j := ((lo + up - 1) / up) * up
		hi := c + halfLen

		var acc float64
		for ; j <= hi; j += up {
			idx := j / up
			if idx >= n {
				break
			}
			acc += h[halfLen+c-j] * float64(samples[idx])
		}
		out[m] = float32(acc)
	}
	return out, nil
}

// lowpass builds a 2*halfLen+1 tap windowed-sinc filter with the given cutoff
// (relative to Nyquist), unit DC gain, multiplied by gain.
func lowpass(halfLen int, cutoff, gain float64) []float64 {
	taps := 2*halfLen + 1
	h := make([]float64, taps)
	i0Beta := besselI0(kaiserBeta)

	var sum float64
	for i := range h {
		m := float64(i - halfLen)
		ratio := 2*float64(i)/float64(taps-1) - 1
		w := besselI0(kaiserBeta*math.Sqrt(1-ratio*ratio)) / i0Beta
		h[i] = cutoff * sinc(cutoff*m) * w
		sum += h[i]
	}
	for i := range h {
		h[i] = h[i] / sum * gain
	}
	return h
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// besselI0 evaluates the zeroth-order modified Bessel function of the first
// kind by its power series.
func besselI0(x float64) float64 {
	sum, term := 1.0, 1.0
	q := x * x / 4
	for k := 1; k < 64; k++ {
		term *= q / float64(k*k)
		sum += term
		if term < sum*1e-16 {
			break
		}
	}
	return sum
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
