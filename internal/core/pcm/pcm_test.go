package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"
)

func TestEncode_ZeroFrame(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 4096)
	chunk := Encode(samples)

	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q; want audio/pcm;rate=16000", chunk.MIMEType)
	}
	want := base64.StdEncoding.EncodeToString(make([]byte, 8192))
	if chunk.Data != want {
		t.Error("encoded zero frame is not base64 of 4096 zero int16 values")
	}
	if got := RMS(samples); got != 0 {
		t.Errorf("RMS = %v; want 0", got)
	}
}

func TestToPCM16_Clamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"full scale", 1.0, math.MaxInt16},
		{"beyond full scale", 1.7, math.MaxInt16},
		{"negative full scale", -1.0, math.MinInt16},
		{"beyond negative full scale", -3, math.MinInt16},
		{"nan", float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := ToPCM16([]float32{tt.in})
			got := int16(binary.LittleEndian.Uint16(out))
			if got != tt.want {
				t.Errorf("ToPCM16(%v) = %d; want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodePCM16_RoundTripsWithinQuantisation(t *testing.T) {
	t.Parallel()

	in := []float32{0, 0.25, -0.25, 0.999, -1}
	buf := DecodePCM16(ToPCM16(in), 24000)
	if len(buf.Samples) != len(in) {
		t.Fatalf("len = %d; want %d", len(buf.Samples), len(in))
	}
	for i := range in {
		if d := math.Abs(float64(buf.Samples[i] - in[i])); d > 2.0/32768 {
			t.Errorf("sample %d = %v; want ~%v", i, buf.Samples[i], in[i])
		}
	}
}

func TestDecodePCM16_IgnoresOddByte(t *testing.T) {
	t.Parallel()

	buf := DecodePCM16([]byte{0, 0, 1}, 24000)
	if len(buf.Samples) != 1 {
		t.Errorf("len = %d; want 1", len(buf.Samples))
	}
}

func TestDecodeBase64_Duration(t *testing.T) {
	t.Parallel()

	// 12000 samples at 24 kHz is half a second.
	data := base64.StdEncoding.EncodeToString(make([]byte, 24000))
	buf, err := DecodeBase64(data, "audio/pcm;rate=24000")
	if err != nil {
		t.Fatalf("DecodeBase64: %v", err)
	}
	if got := buf.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration = %v; want 500ms", got)
	}
}

func TestDecodeBase64_InvalidPayload(t *testing.T) {
	t.Parallel()

	if _, err := DecodeBase64("!!not base64!!", "audio/pcm"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func TestRateFromMIME(t *testing.T) {
	t.Parallel()

	tests := map[string]int{
		"audio/pcm;rate=24000":   24000,
		"audio/pcm; rate=16000":  16000,
		"audio/pcm;RATE=8000":    8000,
		"audio/pcm":              44100,
		"audio/pcm;rate=garbage": 44100,
		"audio/pcm;channels=1":   44100,
		"audio/pcm;rate=-5":      44100,
	}
	for mime, want := range tests {
		if got := RateFromMIME(mime, 44100); got != want {
			t.Errorf("RateFromMIME(%q) = %d; want %d", mime, got, want)
		}
	}
}

func TestRMS_FullScaleSquareWave(t *testing.T) {
	t.Parallel()

	samples := []float32{1, -1, 1, -1}
	if got := RMS(samples); math.Abs(got-1) > 1e-9 {
		t.Errorf("RMS = %v; want 1", got)
	}
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v; want 0", got)
	}
}

func TestDecodeFloat32(t *testing.T) {
	t.Parallel()

	raw := make([]byte, 9)
	binary.LittleEndian.PutUint32(raw[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(raw[4:], math.Float32bits(-0.25))
	got := DecodeFloat32(raw)
	if len(got) != 2 || got[0] != 0.5 || got[1] != -0.25 {
		t.Errorf("DecodeFloat32 = %v; want [0.5 -0.25]", got)
	}
}

func TestEncodedChunk_Bytes(t *testing.T) {
	t.Parallel()

	chunk := EncodeRate([]float32{0.5}, 24000)
	if !strings.HasSuffix(chunk.MIMEType, "rate=24000") {
		t.Errorf("MIMEType = %q", chunk.MIMEType)
	}
	b, err := chunk.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if got := int16(binary.LittleEndian.Uint16(b)); got != 16384 {
		t.Errorf("sample = %d; want 16384", got)
	}
}
