package audio

import "time"

const (
	// InputSampleRate is the capture rate expected by the live session.
	InputSampleRate = 16000

	// OutputSampleRate is the rate of synthesised speech returned by the live session.
	OutputSampleRate = 24000

	// FrameSize is the number of samples per captured frame (~256 ms at 16 kHz).
	FrameSize = 4096
)

// Frame is one block of mono floating-point samples delivered by a [Track].
// Frames are ephemeral: the consumer encodes and drops them.
type Frame struct {
	Samples    []float32
	SampleRate int
}

// Buffer is decoded mono audio ready to be scheduled on an [OutputContext].
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of b.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}
