package browser

import (
	"log/slog"
	"sync"

	"github.com/steveyiyo/voxrelay/pkg/audio"
)

const trackBuffer = 32

// Track re-chunks browser audio into fixed-size frames.
type Track struct {
	frameSize int
	rate      int

	mu      sync.Mutex
	pending []float32
	frames  chan audio.Frame
	stopped bool
}

func newTrack(frameSize, rate int) *Track {
	if frameSize <= 0 {
		frameSize = audio.FrameSize
	}
	return &Track{
		frameSize: frameSize,
		rate:      rate,
		frames:    make(chan audio.Frame, trackBuffer),
	}
}

func (t *Track) Frames() <-chan audio.Frame { return t.frames }

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.pending = nil
	close(t.frames)
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// write appends samples and emits every complete frame. Frames are dropped
// when the consumer falls behind.
func (t *Track) write(samples []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.pending = append(t.pending, samples...)
	for len(t.pending) >= t.frameSize {
		f := audio.Frame{
			Samples:    append([]float32(nil), t.pending[:t.frameSize]...),
			SampleRate: t.rate,
		}
		t.pending = t.pending[t.frameSize:]
		select {
		case t.frames <- f:
		default:
			slog.Debug("browser: dropping microphone frame, consumer behind")
		}
	}
	if len(t.pending) == 0 {
		t.pending = nil
	}
}
