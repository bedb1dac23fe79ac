// Package wavio provides a fast streaming WAV writer for decoded and
// rendered audio.
//
// The writer emits a canonical 44-byte PCM header with placeholder sizes,
// streams samples through a buffered writer without per-sample allocations,
// and patches the real sizes into the header on Close. Input is planar
// float32 in [-1, 1]; quantization to the target bit depth happens here.
package wavio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// WAV container layout.
const (
	// headerSize is the canonical PCM WAV header length.
	headerSize = 44

	// pcmSubchunkSize is the fmt subchunk size for plain PCM.
	pcmSubchunkSize = 16

	// riffHeaderSize is the RIFF size field base (file size minus the
	// 8-byte RIFF preamble, before any data).
	riffHeaderSize = 36

	// fileSizeOffset and dataSizeOffset locate the two placeholder size
	// fields patched on Close.
	fileSizeOffset = 4
	dataSizeOffset = 40

	bitsPerByte = 8
	uint32Size  = 4

	// writerBufferSize is the bufio buffer; large enough that block
	// writes rarely hit the file directly.
	writerBufferSize = 256 * 1024
)

// Writer streams PCM data to a WAV file without per-sample allocations.
type Writer struct {
	w          *bufio.Writer
	f          *os.File
	sampleRate int
	bitDepth   int
	channels   int
	dataSize   uint32
	frames     int64
	byteBuf    []byte
}

// Create opens path for writing and emits the provisional header.
// bitDepth must be 16, 24 or 32.
func Create(path string, sampleRate, bitDepth, channels int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	w, err := NewWriter(f, sampleRate, bitDepth, channels)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter wraps an already-open file positioned at its start.
func NewWriter(f *os.File, sampleRate, bitDepth, channels int) (*Writer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wavio: sample rate must be positive, got %d", sampleRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("wavio: channels must be positive, got %d", channels)
	}
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("wavio: unsupported bit depth %d", bitDepth)
	}

	w := &Writer{
		w:          bufio.NewWriterSize(f, writerBufferSize),
		f:          f,
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		channels:   channels,
	}
	if err := w.writeHeader(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	bytesPerSample := w.bitDepth / bitsPerByte
	byteRate := w.sampleRate * w.channels * bytesPerSample
	blockAlign := w.channels * bytesPerSample

	header := make([]byte, headerSize)

	// RIFF header
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 0) // Placeholder for file size - 8
	copy(header[8:12], "WAVE")

	// fmt subchunk
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], pcmSubchunkSize)
	binary.LittleEndian.PutUint16(header[20:22], 1) // AudioFormat (1 = PCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(w.bitDepth))

	// data subchunk
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], 0) // Placeholder for data size

	_, err := w.w.Write(header)
	return err
}

// SampleRate returns the writer's sample rate.
func (w *Writer) SampleRate() int { return w.sampleRate }

// Channels returns the writer's channel count.
func (w *Writer) Channels() int { return w.channels }

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int64 { return w.frames }

// WriteBlock interleaves one planar block and appends it as PCM.
// Samples outside [-1, 1] are clamped.
func (w *Writer) WriteBlock(block [][]float32) error {
	if len(block) != w.channels {
		return fmt.Errorf("wavio: expected %d channels, got %d", w.channels, len(block))
	}
	frames := len(block[0])
	for _, ch := range block {
		if len(ch) != frames {
			return fmt.Errorf("wavio: ragged channel lengths")
		}
	}
	if frames == 0 {
		return nil
	}

	bytesPerSample := w.bitDepth / bitsPerByte
	needed := frames * w.channels * bytesPerSample
	if len(w.byteBuf) < needed {
		w.byteBuf = make([]byte, needed)
	}
	buf := w.byteBuf[:needed]

	switch w.bitDepth {
	case 16:
		w.encode16(buf, block, frames)
	case 24:
		w.encode24(buf, block, frames)
	case 32:
		w.encode32(buf, block, frames)
	}

	written, err := w.w.Write(buf)
	w.dataSize += uint32(written)
	if err != nil {
		return err
	}
	w.frames += int64(frames)
	return nil
}

func (w *Writer) encode16(buf []byte, block [][]float32, frames int) {
	i := 0
	for f := 0; f < frames; f++ {
		for ch := 0; ch < w.channels; ch++ {
			s := quantize(block[ch][f], math.MaxInt16)
			binary.LittleEndian.PutUint16(buf[i:], uint16(int16(s)))
			i += 2
		}
	}
}

func (w *Writer) encode24(buf []byte, block [][]float32, frames int) {
	i := 0
	for f := 0; f < frames; f++ {
		for ch := 0; ch < w.channels; ch++ {
			s := quantize(block[ch][f], 1<<23-1)
			buf[i] = byte(s)
			buf[i+1] = byte(s >> 8)
			buf[i+2] = byte(s >> 16)
			i += 3
		}
	}
}

func (w *Writer) encode32(buf []byte, block [][]float32, frames int) {
	i := 0
	for f := 0; f < frames; f++ {
		for ch := 0; ch < w.channels; ch++ {
			s := quantize(block[ch][f], math.MaxInt32)
			binary.LittleEndian.PutUint32(buf[i:], uint32(int32(s)))
			i += 4
		}
	}
}

// quantize converts a [-1, 1] sample to a signed integer of the given
// positive full-scale value, clamping out-of-range input.
func quantize(v float32, maxVal int32) int32 {
	scaled := math.Round(float64(v) * float64(maxVal))
	if scaled > float64(maxVal) {
		return maxVal
	}
	if scaled < -float64(maxVal)-1 {
		return -maxVal - 1
	}
	return int32(scaled)
}

// Close flushes buffered data, patches the header size fields, and closes
// the underlying file.
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}

	fileSize := riffHeaderSize + w.dataSize
	sizeBytes := make([]byte, uint32Size)

	if _, err := w.f.Seek(fileSizeOffset, io.SeekStart); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(sizeBytes, fileSize)
	if _, err := w.f.Write(sizeBytes); err != nil {
		return err
	}

	if _, err := w.f.Seek(dataSizeOffset, io.SeekStart); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(sizeBytes, w.dataSize)
	if _, err := w.f.Write(sizeBytes); err != nil {
		return err
	}

	return w.f.Close()
}
