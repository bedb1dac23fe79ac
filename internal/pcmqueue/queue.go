// Package pcmqueue buffers produced-but-not-yet-emitted PCM between the
// stretch engine's irregular output granularity and the fixed-size requests
// of the real-time output callback.
package pcmqueue

// Queue is an ordered sequence of interleaved float32 PCM blocks with a
// cached total frame count. Frames are consumed from the front; a block is
// split when only part of it is needed and the remainder stays queued.
//
// The queue is not internally synchronized. The owning session serializes
// access under its own lock, so Take stays allocation-free on the callback
// path.
type Queue struct {
	channels int
	blocks   [][]float32
	headOff  int // frames already consumed from blocks[0]
	frames   int
}

// New creates an empty queue for the given interleaved channel count.
func New(channels int) *Queue {
	if channels < 1 {
		channels = 1
	}
	return &Queue{channels: channels}
}

// Channels returns the interleaved channel count the queue was created with.
func (q *Queue) Channels() int {
	return q.channels
}

// Append pushes a produced block onto the back of the queue and adds its
// frames to the cached count. The queue takes ownership of the slice.
// A trailing partial frame is dropped; empty blocks are ignored.
func (q *Queue) Append(block []float32) {
	if rem := len(block) % q.channels; rem != 0 {
		block = block[:len(block)-rem]
	}
	if len(block) == 0 {
		return
	}
	q.blocks = append(q.blocks, block)
	q.frames += len(block) / q.channels
}

// Take copies up to len(dst)/channels frames into dst from the front of the
// queue, splitting the front block if only part of it is needed, and returns
// the number of frames copied. It may return fewer frames than requested
// when the queue underruns; dst beyond the returned frames is untouched.
func (q *Queue) Take(dst []float32) int {
	need := len(dst) / q.channels
	written := 0

	for need > 0 && q.frames > 0 {
		front := q.blocks[0]
		frontFrames := len(front)/q.channels - q.headOff
		take := min(need, frontFrames)

		start := q.headOff * q.channels
		copy(dst[written*q.channels:(written+take)*q.channels], front[start:start+take*q.channels])

		if take == frontFrames {
			q.blocks[0] = nil
			q.blocks = q.blocks[1:]
			q.headOff = 0
		} else {
			q.headOff += take
		}

		q.frames -= take
		written += take
		need -= take
	}

	return written
}

// Frames returns the cached total frame count in O(1).
func (q *Queue) Frames() int {
	return q.frames
}

// Clear drops all queued blocks and resets the frame count.
func (q *Queue) Clear() {
	for i := range q.blocks {
		q.blocks[i] = nil
	}
	q.blocks = q.blocks[:0]
	q.headOff = 0
	q.frames = 0
}
