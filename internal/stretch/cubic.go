package stretch

// cubicResampler implements cubic (4-point, 3rd order) Hermite interpolation
// with a live-settable ratio. It is the pitch stage of the stretcher: the
// vocoder stretches time by timeRatio*pitchScale, then this stage resamples
// by 1/pitchScale, which restores the duration and shifts the pitch.
type cubicResampler struct {
	ratio   float64
	phase   float64
	history [4]float64 // 4-point window for interpolation
}

func newCubicResampler(ratio float64) *cubicResampler {
	return &cubicResampler{ratio: ratio}
}

// setRatio updates the output/input ratio without disturbing the phase
// accumulator, so a live pitch change does not click.
func (c *cubicResampler) setRatio(ratio float64) {
	c.ratio = ratio
}

// process resamples input and appends the converted output to dst,
// returning the extended slice. Output count per call is roughly
// len(input)*ratio; the caller owns dst's growth.
func (c *cubicResampler) process(dst []float32, input []float64) []float32 {
	for _, sample := range input {
		// Shift history window
		c.history[3] = c.history[2]
		c.history[2] = c.history[1]
		c.history[1] = c.history[0]
		c.history[0] = sample

		// Generate output samples
		for c.phase < 1.0 {
			dst = append(dst, float32(c.interpolate(c.phase)))
			c.phase += 1.0 / c.ratio
		}

		// Wrap phase
		c.phase -= 1.0
	}
	return dst
}

// interpolate performs cubic Hermite interpolation at fractional position x
// between the two middle history points, evaluated as ((a*x+b)*x+c)*x+d.
func (c *cubicResampler) interpolate(x float64) float64 {
	y0 := c.history[3] // oldest
	y1 := c.history[2]
	y2 := c.history[1]
	y3 := c.history[0] // newest

	coefA := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	coefB := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	coefC := -0.5*y0 + 0.5*y2
	coefD := y1

	return ((coefA*x+coefB)*x+coefC)*x + coefD
}

// reset clears the history window and phase accumulator.
func (c *cubicResampler) reset() {
	c.phase = 0
	c.history = [4]float64{}
}
