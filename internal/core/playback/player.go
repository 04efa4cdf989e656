// Package playback schedules decoded speech on an output clock so that
// consecutive chunks play back to back, and cancels everything on interruption.
package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/steveyiyo/voxrelay/internal/core/pcm"
	"github.com/steveyiyo/voxrelay/pkg/audio"
)

// Scheduled describes where a chunk landed on the output clock.
type Scheduled struct {
	Start    time.Duration
	Duration time.Duration
}

// Player owns the set of active playback sources and the cursor marking the
// next free slot on the output clock. A zero cursor means nothing is pending.
//
// All methods are safe for concurrent use. The output context is called
// without holding the player lock, and speaking changes are delivered in
// order under their own lock.
type Player struct {
	out        audio.OutputContext
	onSpeaking func(bool)

	mu     sync.Mutex
	cursor time.Duration
	// active maps source ids to sources; a nil value is a slot reserved by a
	// Schedule whose Start has not returned yet.
	active   map[uint64]audio.Source
	nextID   uint64
	epoch    uint64
	speaking bool

	notifyMu sync.Mutex
	reported bool
}

// New creates a Player bound to out. onSpeaking, if non-nil, is called with
// true when the first source is scheduled and false when the active set
// becomes empty.
func New(out audio.OutputContext, onSpeaking func(bool)) *Player {
	return &Player{
		out:        out,
		onSpeaking: onSpeaking,
		active:     make(map[uint64]audio.Source),
	}
}

// Enqueue decodes little-endian PCM16 data tagged with mimeType and schedules
// it at max(cursor, now).
func (p *Player) Enqueue(data []byte, mimeType string) (Scheduled, error) {
	buf := pcm.DecodePCM16(data, pcm.RateFromMIME(mimeType, audio.OutputSampleRate))
	return p.Schedule(buf)
}

// Schedule places buf on the output clock. The slot is reserved before the
// output context is asked to start it, so concurrent calls never overlap.
func (p *Player) Schedule(buf audio.Buffer) (Scheduled, error) {
	p.mu.Lock()
	if now := p.out.Now(); p.cursor < now {
		p.cursor = now
	}
	id := p.nextID
	p.nextID++
	epoch := p.epoch
	sched := Scheduled{Start: p.cursor, Duration: buf.Duration()}
	p.cursor += sched.Duration
	p.active[id] = nil
	p.speaking = true
	p.mu.Unlock()
	p.notify()

	src, err := p.out.Start(buf, sched.Start, func() { p.ended(id) })

	p.mu.Lock()
	_, reserved := p.active[id]
	current := epoch == p.epoch
	if err != nil {
		if current {
			delete(p.active, id)
			if p.cursor == sched.Start+sched.Duration {
				p.cursor = sched.Start
			}
			if len(p.active) == 0 {
				p.speaking = false
			}
		}
		p.mu.Unlock()
		p.notify()
		return Scheduled{}, fmt.Errorf("playback: start source: %w", err)
	}
	if reserved {
		p.active[id] = src
	}
	p.mu.Unlock()

	// Interrupted while starting: the reservation is gone and the source must
	// not play.
	if !current {
		if err := src.Stop(); err != nil {
			slog.Debug("playback: stop source", "id", id, "error", err)
		}
	}
	return sched, nil
}

// Interrupt stops every scheduled or playing source, clears the active set and
// resets the cursor so the next chunk is placed relative to the output clock.
func (p *Player) Interrupt() {
	p.mu.Lock()
	stopping := p.active
	p.active = make(map[uint64]audio.Source)
	p.cursor = 0
	p.epoch++
	p.speaking = false
	p.mu.Unlock()

	for id, src := range stopping {
		if src == nil {
			continue
		}
		if err := src.Stop(); err != nil {
			slog.Debug("playback: stop source", "id", id, "error", err)
		}
	}
	p.notify()
}

// Reset releases all playback state. It is Interrupt under the name used by
// session teardown.
func (p *Player) Reset() { p.Interrupt() }

// Active returns the number of sources currently scheduled or playing.
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Cursor returns the next free slot on the output clock, 0 when unset.
func (p *Player) Cursor() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

func (p *Player) ended(id uint64) {
	p.mu.Lock()
	if _, ok := p.active[id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.active, id)
	if len(p.active) == 0 {
		p.speaking = false
	}
	p.mu.Unlock()
	p.notify()
}

// notify reports the current speaking state if it differs from the last one
// reported. Holding notifyMu across the read and the callback keeps reports
// in state order.
func (p *Player) notify() {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.mu.Lock()
	on := p.speaking
	p.mu.Unlock()
	if on == p.reported {
		return
	}
	p.reported = on
	if p.onSpeaking != nil {
		p.onSpeaking(on)
	}
}
