package resample

import "math"

// Filter design for the polyphase bank: a Kaiser-windowed sinc prototype
// sampled on a half-offset grid so that forward sub-phase interpolation
// lands exactly on the continuous kernel.

// besselI0 computes the modified Bessel function of the first kind, order
// zero. Chebyshev polynomial approximations per Abramowitz & Stegun: direct
// series below |x| = 3.75, exponentially scaled asymptotic expansion above.
// Accuracy is ~15 digits, far beyond what window design needs.
func besselI0(x float64) float64 {
	const argSplit = 3.75

	ax := math.Abs(x)
	if ax < argSplit {
		t := x / argSplit
		t *= t
		return 1.0 + t*(3.5156229+t*(3.0899424+t*(1.2067492+
			t*(0.2659732+t*(0.360768e-1+t*0.45813e-2)))))
	}

	t := argSplit / ax
	p := 0.39894228 + t*(0.1328592e-1+t*(0.225319e-2+
		t*(-0.157565e-2+t*(0.916281e-2+t*(-0.2057706e-1+
			t*(0.2635537e-1+t*(-0.1647633e-1+t*0.392377e-2)))))))
	return math.Exp(ax) * p / math.Sqrt(ax)
}

// kaiserBeta maps a stopband attenuation in dB to the Kaiser window shape
// parameter, using the Kaiser & Schafer empirical fit.
func kaiserBeta(attenuationDB float64) float64 {
	switch {
	case attenuationDB > 50:
		return 0.1102 * (attenuationDB - 8.7)
	case attenuationDB >= 21:
		d := attenuationDB - 21
		return 0.5842*math.Pow(d, 0.4) + 0.07886*d
	default:
		return 0
	}
}

// kaiserWindow returns a length-point Kaiser window with the given beta.
func kaiserWindow(length int, beta float64) []float64 {
	w := make([]float64, length)
	if length == 1 {
		w[0] = 1
		return w
	}
	alpha := float64(length-1) / 2
	i0Beta := besselI0(beta)
	for n := range w {
		x := (float64(n) - alpha) / alpha
		w[n] = besselI0(beta*math.Sqrt(1-x*x)) / i0Beta
	}
	return w
}

// designPrototype builds the lowpass kernel for the whole bank: a sinc at
// the given cutoff (normalized to the input rate, 0..0.5), Kaiser-windowed
// for the target stopband, protoTaps coefficients long.
//
// The kernel is sampled at u = (k - protoTaps/2) / numPhases input samples,
// a half-phase off the symmetric grid; combined with the reversed-tap plane
// layout this makes coefficient lookup at phase p plus fractional advance x
// exactly kernel((m + x - protoTaps/2) / numPhases). Coefficients are scaled
// so each phase row has unity DC gain.
func designPrototype(cutoff float64) []float64 {
	beta := kaiserBeta(stopbandDB)
	window := kaiserWindow(protoTaps, beta)

	proto := make([]float64, protoTaps)
	sum := 0.0
	for k := range proto {
		u := (float64(k) - float64(protoTaps)/2) / numPhases

		var sinc float64
		if math.Abs(u) < 1e-10 {
			sinc = 2 * cutoff
		} else {
			sinc = math.Sin(2*math.Pi*cutoff*u) / (math.Pi * u)
		}
		proto[k] = sinc * window[k]
		sum += proto[k]
	}

	// Total DC gain numPhases means gain 1 per phase row.
	if math.Abs(sum) > 1e-10 {
		scale := numPhases / sum
		for k := range proto {
			proto[k] *= scale
		}
	}
	return proto
}

// phasePlanes decomposes the prototype into per-phase coefficient planes
// for cubic sub-phase interpolation. Plane layout is [phase][tap] with taps
// time-reversed relative to the prototype, so the convolution loop reads
// history oldest-first:
//
//	coef(tap, phase, x) = a + x*(b + x*(c + x*d))
//
// evaluated against base index m = (tapsPerPhase-1-tap)*numPhases + phase,
// with b, c, d the centered finite differences of the neighboring phases.
func phasePlanes(proto []float64) (a, b, c, d [][]float32) {
	at := func(m int) float64 {
		if m < 0 || m >= len(proto) {
			return 0
		}
		return proto[m]
	}

	a = make([][]float32, numPhases)
	b = make([][]float32, numPhases)
	c = make([][]float32, numPhases)
	d = make([][]float32, numPhases)
	for p := range numPhases {
		a[p] = make([]float32, tapsPerPhase)
		b[p] = make([]float32, tapsPerPhase)
		c[p] = make([]float32, tapsPerPhase)
		d[p] = make([]float32, tapsPerPhase)
		for t := range tapsPerPhase {
			m := (tapsPerPhase-1-t)*numPhases + p

			f0 := at(m)
			fm1 := at(m - 1)
			f1 := at(m + 1)
			f2 := at(m + 2)

			cc := 0.5*(f1+fm1) - f0
			dd := (f2 - f1 + fm1 - f0 - 4*cc) / 6
			bb := f1 - f0 - dd - cc

			a[p][t] = float32(f0)
			b[p][t] = float32(bb)
			c[p][t] = float32(cc)
			d[p][t] = float32(dd)
		}
	}
	return a, b, c, d
}
