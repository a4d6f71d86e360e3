// Package resample implements a windowed-sinc sample rate converter.
//
// FileSource decodes files at their native rate but the Mixer combines
// every source at one fixed pipeline rate, so every non-matching file needs
// resampling before it reaches the Mixer. The filter parameters are fixed:
//
//	sinc length:          256 taps
//	cutoff:               0.95 of Nyquist
//	interpolation:        linear between phases
//	oversampling factor:  128
//	window:               two-term Blackman-Harris
//
// The algorithm is two-stage: a precomputed, oversampled table of windowed
// sinc taps, with linear interpolation between adjacent table phases at
// resample time.
package resample

import "math"

const (
	sincLen            = 256
	fCutoff            = 0.95
	oversamplingFactor = 128
)

// Resampler converts a stream sampled at InRate to OutRate using a fixed
// windowed-sinc filter table built once at construction.
type Resampler struct {
	inRate, outRate int
	table           [][]float64 // table[phase][tap], phase in [0, oversamplingFactor]
	cutoff          float64
}

// New builds a Resampler between the given rates. If inRate == outRate the
// returned Resampler still works but Process becomes a copy.
func New(inRate, outRate int) *Resampler {
	cutoff := fCutoff
	if outRate < inRate {
		// Downsampling: scale the cutoff by the rate ratio to avoid aliasing.
		cutoff *= float64(outRate) / float64(inRate)
	}

	r := &Resampler{
		inRate:  inRate,
		outRate: outRate,
		cutoff:  cutoff,
		table:   make([][]float64, oversamplingFactor+1),
	}

	half := float64(sincLen) / 2
	for phase := 0; phase <= oversamplingFactor; phase++ {
		frac := float64(phase) / float64(oversamplingFactor)
		row := make([]float64, sincLen)
		for k := 0; k < sincLen; k++ {
			x := (float64(k) - half + frac) * cutoff
			row[k] = sincFunc(x) * cutoff * blackmanHarris2(k, sincLen)
		}
		r.table[phase] = row
	}
	return r
}

func sincFunc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackmanHarris2 is the two-term Blackman-Harris window: a cheaper,
// slightly less steep relative of the four-term window.
func blackmanHarris2(i, n int) float64 {
	const a0, a1 = 0.62, 0.48
	x := 2 * math.Pi * float64(i) / float64(n-1)
	return a0 - a1*math.Cos(x)
}

// Process resamples in and returns the converted output. It is stateless
// across calls — callers needing sample-accurate continuity across chunk
// boundaries should feed one contiguous buffer per call, which is how
// FileSource uses it (one call per decoded file).
func (r *Resampler) Process(in []float32) []float32 {
	if r.inRate == r.outRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	if len(in) == 0 {
		return nil
	}

	ratio := float64(r.inRate) / float64(r.outRate)
	outLen := int(float64(len(in)) / ratio)
	out := make([]float32, 0, outLen)

	half := sincLen / 2
	for n := 0; ; n++ {
		tIn := float64(n) * ratio
		base := int(math.Floor(tIn))
		frac := tIn - float64(base)
		if base >= len(in) {
			break
		}

		phaseF := frac * oversamplingFactor
		phase := int(phaseF)
		phaseFrac := phaseF - float64(phase)
		if phase >= oversamplingFactor {
			phase = oversamplingFactor - 1
			phaseFrac = 1
		}

		rowA := r.table[phase]
		rowB := r.table[phase+1]

		var acc float64
		for k := 0; k < sincLen; k++ {
			idx := base - half + k + 1
			if idx < 0 || idx >= len(in) {
				continue
			}
			tap := rowA[k] + (rowB[k]-rowA[k])*phaseFrac
			acc += float64(in[idx]) * tap
		}
		out = append(out, float32(acc))
	}
	return out
}
