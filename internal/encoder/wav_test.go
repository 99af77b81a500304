package encoder

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWavWriterPatchesHeaderOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.wav")
	w, err := newWavWriter(path, 48000, 2)
	if err != nil {
		t.Fatalf("newWavWriter: %v", err)
	}

	samples := []int16{100, -100, 32767, -32768}
	if err := w.WriteSamples(samples); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}
	if w.DataBytes() != 8 {
		t.Fatalf("DataBytes = %d, want 8", w.DataBytes())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != wavHeaderSize+8 {
		t.Fatalf("file size = %d, want %d", len(raw), wavHeaderSize+8)
	}
	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(raw[4:8]); got != 36+8 {
		t.Fatalf("RIFF size = %d, want 44", got)
	}
	if got := binary.LittleEndian.Uint32(raw[40:44]); got != 8 {
		t.Fatalf("data size = %d, want 8", got)
	}
	if got := binary.LittleEndian.Uint32(raw[24:28]); got != 48000 {
		t.Fatalf("sample rate = %d, want 48000", got)
	}
	// First sample back out, little-endian.
	if got := int16(binary.LittleEndian.Uint16(raw[44:46])); got != 100 {
		t.Fatalf("first sample = %d, want 100", got)
	}
}
