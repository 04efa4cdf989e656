package browser

import (
	"context"
	"sync"
	"time"

	"github.com/steveyiyo/voxrelay/internal/core/pcm"
	"github.com/steveyiyo/voxrelay/pkg/audio"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

// Context mirrors a browser AudioContext. It starts suspended.
type Context struct {
	p    *Platform
	kind string
	rate int

	mu        sync.Mutex
	state     audio.ContextState
	resumedAt time.Time
}

func newContext(p *Platform, kind string, rate int) *Context {
	return &Context{p: p, kind: kind, rate: rate}
}

func (c *Context) SampleRate() int { return c.rate }

func (c *Context) State() audio.ContextState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Context) Resume(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case audio.StateClosed:
		return errContextClosed
	case audio.StateSuspended:
		c.state = audio.StateRunning
		if c.resumedAt.IsZero() {
			c.resumedAt = time.Now()
		}
	}
	return nil
}

// Close is idempotent.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.state == audio.StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = audio.StateClosed
	c.mu.Unlock()
	c.p.emit(types.Event{Type: EventContextClosed, State: c.kind})
	return nil
}

// elapsed is the clock position: time since the first resume.
func (c *Context) elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resumedAt.IsZero() {
		return 0
	}
	return time.Since(c.resumedAt)
}

// OutputContext schedules playback in the browser. The server keeps a timer
// per source so onEnded fires when the browser finishes playing it.
type OutputContext struct {
	*Context

	srcMu   sync.Mutex
	nextID  uint64
	sources map[uint64]*source
}

func (o *OutputContext) Now() time.Duration { return o.elapsed() }

func (o *OutputContext) Start(buf audio.Buffer, at time.Duration, onEnded func()) (audio.Source, error) {
	if o.State() == audio.StateClosed {
		return nil, errContextClosed
	}
	chunk := pcm.EncodeRate(buf.Samples, buf.SampleRate)
	dur := buf.Duration()

	o.srcMu.Lock()
	o.nextID++
	s := &source{o: o, id: o.nextID}
	o.sources[s.id] = s
	o.srcMu.Unlock()

	o.p.emit(types.Event{
		Type:     EventPlay,
		SourceID: s.id,
		Play: &types.Play{
			SourceID: s.id,
			At:       at.Seconds(),
			Duration: dur.Seconds(),
			MIMEType: chunk.MIMEType,
			Data:     chunk.Data,
		},
	})

	delay := at + dur - o.Now()
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	s.timer = time.AfterFunc(delay, func() {
		if s.finish() && onEnded != nil {
			onEnded()
		}
	})
	s.mu.Unlock()
	return s, nil
}

func (o *OutputContext) forget(id uint64) {
	o.srcMu.Lock()
	delete(o.sources, id)
	o.srcMu.Unlock()
}

type source struct {
	o  *OutputContext
	id uint64

	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

// finish marks natural completion. It reports false if the source was
// stopped first.
func (s *source) finish() bool {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return false
	}
	s.done = true
	s.mu.Unlock()
	s.o.forget(s.id)
	return true
}

// Stop is idempotent and returns nil for finished sources.
func (s *source) Stop() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	s.o.forget(s.id)
	s.o.p.emit(types.Event{Type: EventStopAudio, SourceID: s.id})
	return nil
}
