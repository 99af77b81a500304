package audio

// ApplyGain multiplies samples in place and clips to the int16 range.
// A gain of 1.0 is a no-op.
func ApplyGain(samples []int16, gain float64) {
	if gain == 1.0 {
		return
	}
	for i, s := range samples {
		samples[i] = clip16(float64(s) * gain)
	}
}

// Mix sums two PCM streams sample-wise into a new slice. If the lengths
// differ, the shorter stream is zero-padded to the longer one. The sum is
// clipped to the int16 range. Either input may be nil; the other passes
// through unchanged (copied).
func Mix(a, b []int16) []int16 {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int16, n)
	for i := range out {
		var sum int32
		if i < len(a) {
			sum += int32(a[i])
		}
		if i < len(b) {
			sum += int32(b[i])
		}
		out[i] = clip32(sum)
	}
	return out
}

func clip16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func clip32(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// bytesToSamples reinterprets little-endian s16le PCM bytes as samples.
// A trailing odd byte is dropped.
func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

// SamplesToBytes serializes samples as little-endian s16le PCM.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}
