package audio

import (
	"math"
	"testing"
)

func makeSine(seconds float64, freq float64, rate int) []float32 {
	samples := make([]float32, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = 0.5 * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return samples
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	src := makeSine(1.0, 440, TargetSampleRate)
	raw := EncodeWAV(src, TargetSampleRate)

	samples, duration, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(samples) != len(src) {
		t.Fatalf("expected %d samples, got %d", len(src), len(samples))
	}
	if math.Abs(duration-1.0) > 1e-6 {
		t.Errorf("expected duration 1.0, got %f", duration)
	}

	// PCM16 квантование даёт погрешность ~1/32767
	for i := 0; i < len(src); i += 1000 {
		if diff := math.Abs(float64(samples[i] - src[i])); diff > 0.001 {
			t.Fatalf("sample %d differs by %f", i, diff)
		}
	}
}

func TestDecodeResamplesTo16k(t *testing.T) {
	src := makeSine(1.0, 440, 44100)
	raw := EncodeWAV(src, 44100)

	samples, duration, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if math.Abs(duration-1.0) > 0.01 {
		t.Errorf("expected ~1.0s after resampling, got %f", duration)
	}
	if got := len(samples); got < TargetSampleRate-100 || got > TargetSampleRate+100 {
		t.Errorf("expected ~%d samples, got %d", TargetSampleRate, got)
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	if _, _, err := Decode([]byte("OggS vorbis data here")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, _, err := Decode([]byte{0x52}); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestIsMP3Header(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want bool
	}{
		{"id3 tag", []byte("ID3\x04\x00"), true},
		{"frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, true},
		{"wav", []byte("RIFF"), false},
		{"garbage", []byte{0x00, 0x01, 0x02, 0x03}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isMP3Header(tt.raw); got != tt.want {
				t.Errorf("isMP3Header(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestResampleLinear(t *testing.T) {
	src := makeSine(1.0, 100, 32000)
	out := resampleLinear(src, 32000, 16000)

	if got := len(out); got != 16000 {
		t.Fatalf("expected 16000 samples, got %d", got)
	}

	// Та же частота - те же данные
	same := resampleLinear(src, 32000, 32000)
	if len(same) != len(src) {
		t.Errorf("same-rate resample changed length: %d -> %d", len(src), len(same))
	}
}

func TestPCM16StereoDownmix(t *testing.T) {
	// Стерео WAV: левый канал 0.5, правый -0.5 -> моно 0
	const frames = 1600
	data := make([]byte, 44+frames*4)
	copy(data[0:4], "RIFF")
	putU32 := func(off int, v uint32) {
		data[off] = byte(v)
		data[off+1] = byte(v >> 8)
		data[off+2] = byte(v >> 16)
		data[off+3] = byte(v >> 24)
	}
	putU16 := func(off int, v uint16) {
		data[off] = byte(v)
		data[off+1] = byte(v >> 8)
	}
	putU32(4, uint32(36+frames*4))
	copy(data[8:12], "WAVE")
	copy(data[12:16], "fmt ")
	putU32(16, 16)
	putU16(20, 1) // PCM
	putU16(22, 2) // stereo
	putU32(24, 16000)
	putU32(28, 16000*4)
	putU16(32, 4)
	putU16(34, 16)
	copy(data[36:40], "data")
	putU32(40, uint32(frames*4))

	left := int16(16384)   // 0.5
	right := int16(-16384) // -0.5
	for i := 0; i < frames; i++ {
		putU16(44+i*4, uint16(left))
		putU16(44+i*4+2, uint16(right))
	}

	samples, rate, err := decodeWAV(data)
	if err != nil {
		t.Fatalf("decodeWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("expected rate 16000, got %d", rate)
	}
	if len(samples) != frames {
		t.Fatalf("expected %d frames, got %d", frames, len(samples))
	}
	for i, s := range samples {
		if math.Abs(float64(s)) > 0.001 {
			t.Fatalf("expected downmix to ~0, got %f at %d", s, i)
		}
	}
}
