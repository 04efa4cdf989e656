// Package mock provides in-memory implementations of the [audio] interfaces
// for unit tests.
//
// All mocks are safe for concurrent use. They record calls so tests can assert
// on them, and expose exported fields that control return values. The output
// clock is manual: tests move it with [OutputContext.Advance], which also fires
// the ended callbacks of sources whose end time has passed.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/steveyiyo/voxrelay/pkg/audio"
)

var errClosed = errors.New("mock: context closed")

// ─── Context ──────────────────────────────────────────────────────────────────

// Context is a mock [audio.Context]. New contexts start suspended.
type Context struct {
	mu    sync.Mutex
	rate  int
	state audio.ContextState

	// CloseError is returned by Close after the state change.
	CloseError error

	CallCountResume int
	CallCountClose  int
}

// NewContext returns a suspended mock context.
func NewContext(sampleRate int) *Context {
	return &Context{rate: sampleRate}
}

// SampleRate implements [audio.Context].
func (c *Context) SampleRate() int { return c.rate }

// State implements [audio.Context].
func (c *Context) State() audio.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume implements [audio.Context].
func (c *Context) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountResume++
	if c.state == audio.StateClosed {
		return errClosed
	}
	c.state = audio.StateRunning
	return nil
}

// Close implements [audio.Context]. A second Close returns errClosed.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	if c.state == audio.StateClosed {
		return errClosed
	}
	c.state = audio.StateClosed
	return c.CloseError
}

// ─── OutputContext ────────────────────────────────────────────────────────────

// Scheduled records one call to [OutputContext.Start].
type Scheduled struct {
	ID       int
	At       time.Duration
	Duration time.Duration
	Stopped  bool
	Ended    bool
}

// OutputContext is a mock [audio.OutputContext] with a manual clock.
type OutputContext struct {
	Context

	clockMu sync.Mutex
	now     time.Duration
	sources []*Source

	// StartError, when set, is returned by Start.
	StartError error
}

// NewOutputContext returns a suspended mock output context at clock zero.
func NewOutputContext(sampleRate int) *OutputContext {
	return &OutputContext{Context: Context{rate: sampleRate}}
}

// Now implements [audio.OutputContext].
func (o *OutputContext) Now() time.Duration {
	o.clockMu.Lock()
	defer o.clockMu.Unlock()
	return o.now
}

// Start implements [audio.OutputContext].
func (o *OutputContext) Start(buf audio.Buffer, at time.Duration, onEnded func()) (audio.Source, error) {
	o.clockMu.Lock()
	defer o.clockMu.Unlock()
	if o.StartError != nil {
		return nil, o.StartError
	}
	s := &Source{
		id:      len(o.sources),
		at:      at,
		dur:     buf.Duration(),
		onEnded: onEnded,
	}
	o.sources = append(o.sources, s)
	return s, nil
}

// Advance moves the clock forward by d and fires ended callbacks for every
// source that finished, outside the clock lock.
func (o *OutputContext) Advance(d time.Duration) {
	o.clockMu.Lock()
	o.now += d
	var fire []func()
	for _, s := range o.sources {
		if f := s.finishIfDue(o.now); f != nil {
			fire = append(fire, f)
		}
	}
	o.clockMu.Unlock()
	for _, f := range fire {
		f()
	}
}

// Scheduled returns a snapshot of every source started so far, in order.
func (o *OutputContext) Scheduled() []Scheduled {
	o.clockMu.Lock()
	defer o.clockMu.Unlock()
	out := make([]Scheduled, len(o.sources))
	for i, s := range o.sources {
		out[i] = s.snapshot()
	}
	return out
}

// Source is a mock [audio.Source].
type Source struct {
	mu      sync.Mutex
	id      int
	at      time.Duration
	dur     time.Duration
	onEnded func()
	stopped bool
	ended   bool
}

// Stop implements [audio.Source]; it never fails.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.stopped = true
	}
	return nil
}

func (s *Source) finishIfDue(now time.Duration) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.ended || now < s.at+s.dur {
		return nil
	}
	s.ended = true
	return s.onEnded
}

func (s *Source) snapshot() Scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Scheduled{ID: s.id, At: s.at, Duration: s.dur, Stopped: s.stopped, Ended: s.ended}
}

// ─── Track ────────────────────────────────────────────────────────────────────

// Track is a mock [audio.Track]. Tests push frames with Push.
type Track struct {
	mu      sync.Mutex
	frames  chan audio.Frame
	stopped bool

	CallCountStop int
}

// NewTrack returns a track whose channel buffers up to n frames.
func NewTrack(n int) *Track {
	return &Track{frames: make(chan audio.Frame, n)}
}

// Frames implements [audio.Track].
func (t *Track) Frames() <-chan audio.Frame { return t.frames }

// Push delivers a frame unless the track is stopped. It reports whether the
// frame was queued.
func (t *Track) Push(f audio.Frame) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.frames <- f
	return true
}

// Stop implements [audio.Track].
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.CallCountStop++
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.frames)
}

// Stopped reports whether Stop was called.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock [audio.Platform]. Every acquisition is recorded so tests
// can check what was released.
type Platform struct {
	mu sync.Mutex

	// InputError, OutputError and MicrophoneError fail the matching call.
	InputError      error
	OutputError     error
	MicrophoneError error

	Inputs  []*Context
	Outputs []*OutputContext
	Tracks  []*Track

	// MaxLiveTracks is the largest number of simultaneously unstopped tracks
	// observed at any OpenMicrophone call.
	MaxLiveTracks int
}

// OpenInput implements [audio.Platform].
func (p *Platform) OpenInput(_ context.Context, sampleRate int) (audio.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.InputError != nil {
		return nil, p.InputError
	}
	c := NewContext(sampleRate)
	p.Inputs = append(p.Inputs, c)
	return c, nil
}

// OpenOutput implements [audio.Platform].
func (p *Platform) OpenOutput(_ context.Context, sampleRate int) (audio.OutputContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OutputError != nil {
		return nil, p.OutputError
	}
	o := NewOutputContext(sampleRate)
	p.Outputs = append(p.Outputs, o)
	return o, nil
}

// OpenMicrophone implements [audio.Platform].
func (p *Platform) OpenMicrophone(_ context.Context, _ audio.Context, _ int) (audio.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.MicrophoneError != nil {
		return nil, p.MicrophoneError
	}
	t := NewTrack(16)
	p.Tracks = append(p.Tracks, t)
	live := 0
	for _, tr := range p.Tracks {
		if !tr.Stopped() {
			live++
		}
	}
	if live > p.MaxLiveTracks {
		p.MaxLiveTracks = live
	}
	return t, nil
}

// LastTrack returns the most recently opened track, or nil.
func (p *Platform) LastTrack() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Tracks) == 0 {
		return nil
	}
	return p.Tracks[len(p.Tracks)-1]
}

// LastOutput returns the most recently opened output context, or nil.
func (p *Platform) LastOutput() *OutputContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Outputs) == 0 {
		return nil
	}
	return p.Outputs[len(p.Outputs)-1]
}
