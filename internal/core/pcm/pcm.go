// Package pcm converts between floating-point sample blocks and the 16-bit
// little-endian PCM payloads exchanged with the live session.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/steveyiyo/voxrelay/pkg/audio"
)

// InputMIMEType tags captured microphone audio sent to the live session.
const InputMIMEType = "audio/pcm;rate=16000"

// EncodedChunk is a base64 PCM payload plus its MIME tag.
type EncodedChunk struct {
	Data     string
	MIMEType string
}

// Bytes returns the raw PCM bytes of c.
func (c EncodedChunk) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		return nil, fmt.Errorf("pcm: decode chunk: %w", err)
	}
	return b, nil
}

// Encode converts samples in [-1, 1] to a 16 kHz [EncodedChunk].
func Encode(samples []float32) EncodedChunk {
	return EncodeRate(samples, audio.InputSampleRate)
}

// EncodeRate is [Encode] with an explicit sample rate in the MIME tag.
func EncodeRate(samples []float32, sampleRate int) EncodedChunk {
	return EncodedChunk{
		Data:     base64.StdEncoding.EncodeToString(ToPCM16(samples)),
		MIMEType: MIMEType(sampleRate),
	}
}

// MIMEType returns the PCM MIME tag for sampleRate.
func MIMEType(sampleRate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(sampleRate)
}

// ToPCM16 scales samples to int16 little-endian bytes. Out-of-range input is
// clamped rather than wrapped; NaN becomes silence.
func ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	if s != s {
		return 0
	}
	v := float64(s) * 32768
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// DecodePCM16 converts little-endian int16 bytes into a playable buffer.
// A trailing odd byte is ignored.
func DecodePCM16(data []byte, sampleRate int) audio.Buffer {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return audio.Buffer{Samples: samples, SampleRate: sampleRate}
}

// DecodeBase64 decodes a base64 PCM payload tagged with mimeType.
func DecodeBase64(data, mimeType string) (audio.Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("pcm: decode base64: %w", err)
	}
	return DecodePCM16(raw, RateFromMIME(mimeType, audio.OutputSampleRate)), nil
}

// RateFromMIME extracts the rate parameter of a MIME tag such as
// "audio/pcm;rate=24000", returning fallback when absent or invalid.
func RateFromMIME(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// IsAudio reports whether mimeType carries PCM audio.
func IsAudio(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "audio/")
}

// RMS returns the root-mean-square level of samples, 0 for an empty block.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DecodeFloat32 parses little-endian float32 samples, as shipped by the
// browser capture worklet. A trailing partial sample is ignored.
func DecodeFloat32(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := range n {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
