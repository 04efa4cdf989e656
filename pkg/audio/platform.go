// Package audio defines the device contracts used by the voice pipeline: audio
// contexts with their own clocks, scheduled playback sources and microphone tracks.
//
// The interfaces mirror the capabilities a browser exposes (AudioContext,
// AudioBufferSourceNode, getUserMedia) so that a WebSocket bridge to a real
// browser and in-memory fakes can be used interchangeably.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by [Platform.OpenMicrophone] when the user
// refuses microphone access.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// ContextState is the lifecycle state of an audio [Context].
type ContextState int

const (
	// StateSuspended means the context exists but its clock is not running.
	StateSuspended ContextState = iota

	// StateRunning means the context clock advances and playback is possible.
	StateRunning

	// StateClosed means the context has been released and cannot be reused.
	StateClosed
)

// String returns the human-readable name of the state.
func (s ContextState) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Context is an audio processing graph with its own sample rate and clock.
type Context interface {
	// SampleRate is the rate the context was opened with.
	SampleRate() int

	// State reports the current lifecycle state.
	State() ContextState

	// Resume starts the clock of a suspended context. Resuming a running
	// context is a no-op; resuming a closed one returns an error.
	Resume(ctx context.Context) error

	// Close releases the context. Closing twice returns an error from some
	// implementations; callers that tear down should check State first.
	Close() error
}

// Source is one scheduled unit of playback.
type Source interface {
	// Stop cancels playback. Stopping a source that already finished or was
	// already stopped must return nil.
	Stop() error
}

// OutputContext is a [Context] that plays buffers at explicit times on its clock.
type OutputContext interface {
	Context

	// Now returns the current position of the output clock.
	Now() time.Duration

	// Start schedules buf to begin at the clock position at. onEnded is called
	// once when the source finishes naturally; it is never called for a source
	// stopped with [Source.Stop], and never from within Start itself.
	Start(buf Buffer, at time.Duration, onEnded func()) (Source, error)
}

// Track is a live microphone stream.
type Track interface {
	// Frames delivers captured frames. The channel is closed after Stop.
	Frames() <-chan Frame

	// Stop releases the microphone. Safe to call more than once.
	Stop()
}

// Platform acquires audio resources for one conversation.
type Platform interface {
	// OpenInput creates the capture-side context.
	OpenInput(ctx context.Context, sampleRate int) (Context, error)

	// OpenOutput creates the playback-side context.
	OpenOutput(ctx context.Context, sampleRate int) (OutputContext, error)

	// OpenMicrophone requests permission and returns a live track producing
	// frames of frameSize samples. Denial yields [ErrPermissionDenied].
	OpenMicrophone(ctx context.Context, in Context, frameSize int) (Track, error)
}
