package live

import (
	"log/slog"
	"sync"

	"github.com/steveyiyo/voxrelay/internal/core/capture"
	"github.com/steveyiyo/voxrelay/internal/core/playback"
	"github.com/steveyiyo/voxrelay/internal/core/transcript"
	"github.com/steveyiyo/voxrelay/pkg/audio"
)

// sessionContext holds everything acquired for one session. A nil field
// means the resource was never acquired or has been released.
type sessionContext struct {
	mu        sync.Mutex
	closed    bool
	activated bool

	session Session
	input   audio.Context
	output  audio.OutputContext
	track   audio.Track
	player  *playback.Player
	capture *capture.Pipeline

	asm *transcript.Assembler
}

func (sc *sessionContext) set(f func()) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	f()
}

// sender is the capture pipeline's view of the session. It returns nil once
// the session reference has been cleared so in-flight frames are dropped.
func (sc *sessionContext) sender() capture.Sender {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.session == nil {
		return nil
	}
	return sc.session
}

func (sc *sessionContext) livePlayer() (*playback.Player, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed || sc.player == nil {
		return nil, false
	}
	return sc.player, true
}

// release frees every resource. The session reference is cleared before
// anything is closed. Errors from already-closed resources are swallowed, so
// release is safe to call any number of times. It reports whether the
// session had been active.
func (sc *sessionContext) release() bool {
	sc.mu.Lock()
	sess := sc.session
	pipe := sc.capture
	track := sc.track
	in := sc.input
	out := sc.output
	player := sc.player
	wasActive := sc.activated && !sc.closed
	sc.session = nil
	sc.capture = nil
	sc.track = nil
	sc.input = nil
	sc.output = nil
	sc.player = nil
	sc.closed = true
	sc.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			slog.Debug("live: close session", "error", err)
		}
	}
	if pipe != nil {
		pipe.Stop()
	}
	if track != nil {
		track.Stop()
	}
	closeContext(in)
	if out != nil {
		closeContext(out)
	}
	if player != nil {
		player.Reset()
	}
	sc.asm.Reset()
	return wasActive
}

func closeContext(c audio.Context) {
	if c == nil || c.State() == audio.StateClosed {
		return
	}
	if err := c.Close(); err != nil {
		slog.Debug("live: close audio context", "error", err)
	}
}
