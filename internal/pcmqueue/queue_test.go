package pcmqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stereoRamp builds an interleaved stereo block whose left channel counts up
// from start and whose right channel is the negated left, so continuity
// across takes is easy to verify.
func stereoRamp(start, frames int) []float32 {
	block := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		block[i*2] = float32(start + i)
		block[i*2+1] = -float32(start + i)
	}
	return block
}

func TestFrameCountInvariant(t *testing.T) {
	q := New(2)

	// Track the expected count independently through a mixed mutation
	// sequence and compare after every step.
	expected := 0
	check := func() {
		t.Helper()
		assert.Equal(t, expected, q.Frames(), "cached frame count diverged")
	}

	for _, n := range []int{3, 17, 1, 64} {
		q.Append(stereoRamp(0, n))
		expected += n
		check()
	}

	dst := make([]float32, 10*2)
	for q.Frames() > 0 {
		got := q.Take(dst)
		expected -= got
		check()
	}
	assert.Zero(t, expected)

	q.Append(stereoRamp(0, 5))
	expected = 5
	check()
	q.Clear()
	expected = 0
	check()
}

func TestTakeSplitsFrontBlock(t *testing.T) {
	q := New(2)
	q.Append(stereoRamp(0, 10))

	dst := make([]float32, 4*2)
	require.Equal(t, 4, q.Take(dst))
	assert.Equal(t, 6, q.Frames(), "remainder should stay queued")
	assert.Equal(t, float32(0), dst[0])
	assert.Equal(t, float32(3), dst[6])
	assert.Equal(t, float32(-3), dst[7])

	// The split remainder continues exactly where the first take ended.
	require.Equal(t, 4, q.Take(dst))
	assert.Equal(t, float32(4), dst[0])
	assert.Equal(t, float32(7), dst[6])

	require.Equal(t, 2, q.Take(dst), "underrun returns what remains")
	assert.Equal(t, float32(8), dst[0])
	assert.Equal(t, float32(9), dst[2])
	assert.Zero(t, q.Frames())
}

func TestTakeSpansBlocks(t *testing.T) {
	q := New(2)
	q.Append(stereoRamp(0, 3))
	q.Append(stereoRamp(3, 3))
	q.Append(stereoRamp(6, 3))

	dst := make([]float32, 8*2)
	require.Equal(t, 8, q.Take(dst))
	for i := 0; i < 8; i++ {
		assert.Equal(t, float32(i), dst[i*2], "frame %d left", i)
		assert.Equal(t, -float32(i), dst[i*2+1], "frame %d right", i)
	}
	assert.Equal(t, 1, q.Frames())
}

func TestTakeEmpty(t *testing.T) {
	q := New(2)
	dst := make([]float32, 16)
	assert.Zero(t, q.Take(dst))
	assert.Zero(t, q.Frames())
}

func TestAppendDropsPartialFrame(t *testing.T) {
	q := New(2)
	q.Append([]float32{1, -1, 2}) // trailing half frame
	assert.Equal(t, 1, q.Frames())

	q.Append([]float32{9}) // less than one frame
	assert.Equal(t, 1, q.Frames())

	q.Append(nil)
	assert.Equal(t, 1, q.Frames())
}

func TestMonoLayout(t *testing.T) {
	q := New(1)
	q.Append([]float32{1, 2, 3})

	dst := make([]float32, 2)
	require.Equal(t, 2, q.Take(dst))
	assert.Equal(t, []float32{1, 2}, dst)
	require.Equal(t, 1, q.Take(dst))
	assert.Equal(t, float32(3), dst[0])
}

func TestClearThenReuse(t *testing.T) {
	q := New(2)
	q.Append(stereoRamp(0, 8))
	dst := make([]float32, 3*2)
	require.Equal(t, 3, q.Take(dst))

	q.Clear()
	assert.Zero(t, q.Frames())
	assert.Zero(t, q.Take(dst))

	q.Append(stereoRamp(100, 2))
	require.Equal(t, 2, q.Take(dst))
	assert.Equal(t, float32(100), dst[0])
	assert.Equal(t, float32(101), dst[2])
}
