// Package browser implements the audio device contracts over a WebSocket to
// the user's browser. Playback is scheduled by sending buffers ahead of time
// with a start position on the output clock; microphone audio arrives as
// binary float32 messages.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/steveyiyo/voxrelay/internal/core/pcm"
	"github.com/steveyiyo/voxrelay/pkg/audio"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

// Event types sent to the browser.
const (
	EventMicRequest    = "mic_request"
	EventPlay          = "play"
	EventStopAudio     = "stop_audio"
	EventContextClosed = "audio_context_closed"
)

var (
	// ErrMicrophoneBusy is returned when a track is already live or a
	// permission request is pending.
	ErrMicrophoneBusy = errors.New("browser: microphone already in use")

	// ErrDisconnected is returned when the browser went away.
	ErrDisconnected = errors.New("browser: disconnected")

	errContextClosed = errors.New("browser: audio context closed")
)

// Emitter delivers one event to the browser.
type Emitter interface {
	Emit(ev types.Event) error
}

// Platform is an [audio.Platform] for one browser connection.
type Platform struct {
	out Emitter

	mu      sync.Mutex
	micWait chan bool
	track   *Track
	closed  bool
	done    chan struct{}
}

func New(out Emitter) *Platform {
	return &Platform{out: out, done: make(chan struct{})}
}

func (p *Platform) OpenInput(_ context.Context, sampleRate int) (audio.Context, error) {
	if p.isClosed() {
		return nil, ErrDisconnected
	}
	return newContext(p, "input", sampleRate), nil
}

func (p *Platform) OpenOutput(_ context.Context, sampleRate int) (audio.OutputContext, error) {
	if p.isClosed() {
		return nil, ErrDisconnected
	}
	return &OutputContext{
		Context: newContext(p, "output", sampleRate),
		sources: make(map[uint64]*source),
	}, nil
}

// OpenMicrophone asks the browser for microphone access and waits for the
// reply delivered through [Platform.MicReply].
func (p *Platform) OpenMicrophone(ctx context.Context, in audio.Context, frameSize int) (audio.Track, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrDisconnected
	}
	if p.micWait != nil || (p.track != nil && !p.track.Stopped()) {
		p.mu.Unlock()
		return nil, ErrMicrophoneBusy
	}
	wait := make(chan bool, 1)
	p.micWait = wait
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.micWait == wait {
			p.micWait = nil
		}
		p.mu.Unlock()
	}()

	if err := p.out.Emit(types.Event{Type: EventMicRequest}); err != nil {
		return nil, err
	}

	select {
	case granted := <-wait:
		if !granted {
			return nil, audio.ErrPermissionDenied
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrDisconnected
	}

	t := newTrack(frameSize, in.SampleRate())
	p.mu.Lock()
	p.track = t
	p.mu.Unlock()
	return t, nil
}

// MicReply delivers the browser's answer to a pending microphone request.
// Replies with no pending request are ignored.
func (p *Platform) MicReply(granted bool) {
	p.mu.Lock()
	wait := p.micWait
	p.mu.Unlock()
	if wait == nil {
		slog.Debug("browser: mic reply with no pending request", "granted", granted)
		return
	}
	select {
	case wait <- granted:
	default:
	}
}

// PushAudio feeds one binary message of little-endian float32 samples into
// the live track. Audio with no live track is dropped.
func (p *Platform) PushAudio(data []byte) {
	p.mu.Lock()
	t := p.track
	p.mu.Unlock()
	if t == nil {
		return
	}
	t.write(pcm.DecodeFloat32(data))
}

// Close marks the browser as gone: pending requests fail and the live track
// is stopped.
func (p *Platform) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	t := p.track
	p.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

func (p *Platform) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Platform) emit(ev types.Event) {
	if p.isClosed() {
		return
	}
	if err := p.out.Emit(ev); err != nil {
		slog.Debug("browser: emit", "type", ev.Type, "error", err)
	}
}
