package encoder

import (
	"encoding/binary"
	"fmt"
	"os"
)

const wavHeaderSize = 44

// wavWriter streams s16le PCM into a RIFF/WAVE file. The header is written
// with zero lengths up front and patched on Close, so a crash mid-session
// leaves a file ffmpeg can still mostly salvage.
type wavWriter struct {
	f         *os.File
	path      string
	dataBytes uint32
}

func newWavWriter(path string, sampleRate, channels int) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create sidecar: %w", err)
	}

	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	var hdr [wavHeaderSize]byte
	copy(hdr[0:4], "RIFF")
	// hdr[4:8] riff size, patched on Close
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], 16) // bits per sample
	copy(hdr[36:40], "data")
	// hdr[40:44] data size, patched on Close

	if _, err := f.Write(hdr[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("write sidecar header: %w", err)
	}
	return &wavWriter{f: f, path: path}, nil
}

// WriteSamples appends interleaved s16le samples.
func (w *wavWriter) WriteSamples(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	n, err := w.f.Write(buf)
	w.dataBytes += uint32(n)
	return err
}

// DataBytes returns the PCM payload size written so far.
func (w *wavWriter) DataBytes() uint32 { return w.dataBytes }

func (w *wavWriter) Path() string { return w.path }

// Close patches the RIFF and data chunk sizes and closes the file.
func (w *wavWriter) Close() error {
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], 36+w.dataBytes)
	if _, err := w.f.WriteAt(sz[:], 4); err != nil {
		w.f.Close()
		return err
	}
	binary.LittleEndian.PutUint32(sz[:], w.dataBytes)
	if _, err := w.f.WriteAt(sz[:], 40); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
