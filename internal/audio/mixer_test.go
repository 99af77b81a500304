package audio

import (
	"reflect"
	"testing"
)

func TestApplyGainScalesWithoutClipping(t *testing.T) {
	mic := []int16{50, 50}
	ApplyGain(mic, 2.0)
	if !reflect.DeepEqual(mic, []int16{100, 100}) {
		t.Fatalf("gain 2.0 on [50,50] = %v, want [100,100]", mic)
	}
}

func TestApplyGainClipsAtInt16Range(t *testing.T) {
	mic := []int16{30000, -30000}
	ApplyGain(mic, 2.0)
	if mic[0] != 32767 {
		t.Fatalf("positive overflow clipped to %d, want 32767", mic[0])
	}
	if mic[1] != -32768 {
		t.Fatalf("negative overflow clipped to %d, want -32768", mic[1])
	}
}

func TestApplyGainUnityIsNoop(t *testing.T) {
	mic := []int16{1, -2, 3}
	ApplyGain(mic, 1.0)
	if !reflect.DeepEqual(mic, []int16{1, -2, 3}) {
		t.Fatalf("unity gain modified samples: %v", mic)
	}
}

func TestMixSumsEqualLengthStreams(t *testing.T) {
	loopback := []int16{100, 100}
	mic := []int16{50, 50}
	ApplyGain(mic, 2.0)
	got := Mix(loopback, mic)
	if !reflect.DeepEqual(got, []int16{200, 200}) {
		t.Fatalf("Mix = %v, want [200,200]", got)
	}
}

func TestMixClipsSum(t *testing.T) {
	got := Mix([]int16{20000}, []int16{20000})
	if got[0] != 32767 {
		t.Fatalf("20000+20000 = %d, want clipped 32767", got[0])
	}
	got = Mix([]int16{-20000}, []int16{-20000})
	if got[0] != -32768 {
		t.Fatalf("-20000+-20000 = %d, want clipped -32768", got[0])
	}
}

func TestMixPadsShorterStream(t *testing.T) {
	got := Mix([]int16{10, 20, 30}, []int16{1})
	if !reflect.DeepEqual(got, []int16{11, 20, 30}) {
		t.Fatalf("Mix with padding = %v, want [11,20,30]", got)
	}
}

func TestMixSingleStreamPassesThrough(t *testing.T) {
	got := Mix([]int16{1, 2, 3}, nil)
	if !reflect.DeepEqual(got, []int16{1, 2, 3}) {
		t.Fatalf("Mix(a, nil) = %v, want [1,2,3]", got)
	}
	got = Mix(nil, []int16{4, 5})
	if !reflect.DeepEqual(got, []int16{4, 5}) {
		t.Fatalf("Mix(nil, b) = %v, want [4,5]", got)
	}
	if Mix(nil, nil) != nil {
		t.Fatal("Mix(nil, nil) should be nil")
	}
}

func TestSampleByteRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 256}
	got := bytesToSamples(SamplesToBytes(in))
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("round trip = %v, want %v", got, in)
	}
}

func TestBytesToSamplesDropsTrailingByte(t *testing.T) {
	got := bytesToSamples([]byte{0x01, 0x00, 0xFF})
	if !reflect.DeepEqual(got, []int16{1}) {
		t.Fatalf("got %v, want [1]", got)
	}
}
