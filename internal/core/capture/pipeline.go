// Package capture bridges a microphone track to the live session: every frame
// is metered for the UI, encoded and forwarded while a session is attached.
package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/steveyiyo/voxrelay/internal/core/pcm"
	"github.com/steveyiyo/voxrelay/pkg/audio"
)

// Sender accepts encoded microphone audio.
type Sender interface {
	SendRealtimeInput(chunk pcm.EncodedChunk) error
}

// SenderFunc returns the sender frames should go to, or nil when the session
// is gone and frames must be dropped.
type SenderFunc func() Sender

// Stats counts what happened to captured frames.
type Stats struct {
	Sent    int64
	Dropped int64
	Failed  int64
}

// Options configures a Pipeline. All callbacks are optional and are invoked
// from the pipeline goroutine.
type Options struct {
	OnLevel func(rms float64)
	OnSent  func()
	OnDrop  func()
	// OnFail is called when the sender rejects a frame.
	OnFail  func()
}

// Pipeline reads frames from a track until stopped.
type Pipeline struct {
	track  audio.Track
	sender SenderFunc
	opts   Options

	sent    atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start launches a pipeline reading from track.
func Start(track audio.Track, sender SenderFunc, opts Options) *Pipeline {
	p := &Pipeline{
		track:  track,
		sender: sender,
		opts:   opts,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Pipeline) run() {
	defer close(p.done)
	frames := p.track.Frames()
	for {
		select {
		case <-p.stop:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			p.Process(f)
		}
	}
}

// Process handles one frame: it reports the RMS level and sends the encoded
// frame if a sender is attached. It returns the level and whether the frame
// was handed to the sender successfully.
func (p *Pipeline) Process(f audio.Frame) (float64, bool) {
	level := pcm.RMS(f.Samples)
	if p.opts.OnLevel != nil {
		p.opts.OnLevel(level)
	}

	s := p.sender()
	if s == nil {
		p.dropped.Add(1)
		if p.opts.OnDrop != nil {
			p.opts.OnDrop()
		}
		return level, false
	}
	if err := s.SendRealtimeInput(pcm.Encode(f.Samples)); err != nil {
		p.failed.Add(1)
		slog.Debug("capture: send frame", "error", err)
		if p.opts.OnFail != nil {
			p.opts.OnFail()
		}
		return level, false
	}
	p.sent.Add(1)
	if p.opts.OnSent != nil {
		p.opts.OnSent()
	}
	return level, true
}

// Stop disconnects the pipeline from its track and waits for the goroutine to
// exit. It does not stop the track itself. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

// Stats returns a snapshot of the frame counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Sent:    p.sent.Load(),
		Dropped: p.dropped.Load(),
		Failed:  p.failed.Load(),
	}
}
