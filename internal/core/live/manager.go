// Package live owns the lifecycle of one conversational voice session: the
// audio contexts, the microphone track, the remote streaming session and the
// pipelines between them.
package live

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/steveyiyo/voxrelay/internal/core/apierr"
	"github.com/steveyiyo/voxrelay/internal/core/capture"
	"github.com/steveyiyo/voxrelay/internal/core/pcm"
	"github.com/steveyiyo/voxrelay/internal/core/playback"
	"github.com/steveyiyo/voxrelay/internal/core/transcript"
	"github.com/steveyiyo/voxrelay/internal/metrics"
	"github.com/steveyiyo/voxrelay/pkg/audio"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

// ErrCredentialMissing is returned by Start when no API key is configured.
var ErrCredentialMissing = errors.New("live: API key is not configured")

// Config configures a Manager.
type Config struct {
	APIKey   string
	Session  SessionConfig
	Observer Observer
	Metrics  *metrics.Metrics
}

// Stats are cumulative counters across every session of a Manager.
type Stats struct {
	FramesSent    int64
	FramesDropped int64
	FramesFailed  int64
	ChunksPlayed  int64
	Interruptions int64
	Turns         int64
}

// Manager drives the Idle → Starting → Active → Stopping → Idle lifecycle.
// Start and Stop are serialized; remote callbacks that arrive for a session
// that has already been replaced are ignored.
type Manager struct {
	connector Connector
	platform  audio.Platform
	cfg       Config
	observer  Observer
	metrics   *metrics.Metrics

	// op serializes lifecycle operations end to end.
	op sync.Mutex

	mu      sync.Mutex
	state   State
	current *sessionContext

	framesSent    atomic.Int64
	framesDropped atomic.Int64
	framesFailed  atomic.Int64
	chunksPlayed  atomic.Int64
	interruptions atomic.Int64
	turns         atomic.Int64
}

// NewManager returns an idle manager.
func NewManager(connector Connector, platform audio.Platform, cfg Config) *Manager {
	obs := cfg.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	return &Manager{
		connector: connector,
		platform:  platform,
		cfg:       cfg,
		observer:  obs,
		metrics:   cfg.Metrics,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of the cumulative counters.
func (m *Manager) Stats() Stats {
	return Stats{
		FramesSent:    m.framesSent.Load(),
		FramesDropped: m.framesDropped.Load(),
		FramesFailed:  m.framesFailed.Load(),
		ChunksPlayed:  m.chunksPlayed.Load(),
		Interruptions: m.interruptions.Load(),
		Turns:         m.turns.Load(),
	}
}

// Start acquires every resource and opens the remote session. A session that
// is already running is torn down first. On failure everything acquired so
// far is released, an error notice is emitted and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	if m.cfg.APIKey == "" {
		m.notice(NoticeError, "API key is not configured.")
		return ErrCredentialMissing
	}
	return m.fire(ctx, EventStart)
}

// Stop tears down the current session. Stopping an idle manager does nothing.
func (m *Manager) Stop() {
	m.op.Lock()
	defer m.op.Unlock()
	_ = m.fire(context.Background(), EventStop)
}

func (m *Manager) fire(ctx context.Context, ev Event) error {
	m.mu.Lock()
	from := m.state
	to, effects := Transition(from, ev)
	m.state = to
	m.mu.Unlock()

	if to != from {
		slog.Debug("live: state", "from", from, "to", to, "event", ev)
		m.observer.StateChanged(to)
	}

	for _, eff := range effects {
		switch eff {
		case EffectAcquire:
			if err := m.acquire(ctx); err != nil {
				return err
			}
		case EffectActivate:
			m.activate()
		case EffectTeardown:
			m.release()
			if err := m.fire(ctx, EventReleased); err != nil {
				return err
			}
		case EffectRestart:
			return m.fire(ctx, EventStart)
		}
	}
	return nil
}

func (m *Manager) acquire(ctx context.Context) error {
	sc := &sessionContext{asm: transcript.NewAssembler()}
	m.mu.Lock()
	m.current = sc
	m.mu.Unlock()

	fail := func(stage string, err error) error {
		m.metrics.StartFailed(stage)
		slog.Warn("live: start failed", "stage", stage, "error", err)
		_ = m.fire(ctx, EventFail)
		m.notice(NoticeError, startFailureText(stage, err))
		return fmt.Errorf("live: %s: %w", stage, err)
	}

	in, err := m.platform.OpenInput(ctx, audio.InputSampleRate)
	if err != nil {
		return fail("input", err)
	}
	sc.set(func() { sc.input = in })
	if err := resume(ctx, in); err != nil {
		return fail("input", err)
	}

	out, err := m.platform.OpenOutput(ctx, audio.OutputSampleRate)
	if err != nil {
		return fail("output", err)
	}
	sc.set(func() { sc.output = out })
	if err := resume(ctx, out); err != nil {
		return fail("output", err)
	}

	track, err := m.platform.OpenMicrophone(ctx, in, audio.FrameSize)
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			return fail("permission_denied", err)
		}
		return fail("microphone", err)
	}
	player := playback.New(out, func(on bool) { m.speaking(sc, on) })
	sc.set(func() {
		sc.track = track
		sc.player = player
	})

	sess, err := m.connector.Connect(ctx, m.cfg.Session, m.callbacks(sc))
	if err != nil {
		return fail("connect", err)
	}
	sc.set(func() { sc.session = sess })

	pipe := capture.Start(track, sc.sender, capture.Options{
		OnLevel: func(rms float64) {
			if m.isCurrent(sc) {
				m.observer.InputLevel(rms)
			}
		},
		OnSent: func() {
			m.framesSent.Add(1)
			m.metrics.FrameSent()
		},
		OnDrop: func() {
			m.framesDropped.Add(1)
			m.metrics.FrameDropped()
		},
		OnFail: func() {
			m.framesFailed.Add(1)
			m.metrics.FrameFailed()
		},
	})
	sc.set(func() { sc.capture = pipe })

	return m.fire(ctx, EventReady)
}

func (m *Manager) activate() {
	m.mu.Lock()
	sc := m.current
	m.mu.Unlock()
	if sc != nil {
		sc.set(func() { sc.activated = true })
	}
	m.metrics.SessionStarted()
	slog.Info("live: session active", "model", m.cfg.Session.Model)
}

func (m *Manager) release() {
	m.mu.Lock()
	sc := m.current
	m.current = nil
	m.mu.Unlock()
	if sc == nil {
		return
	}
	if sc.release() {
		m.metrics.SessionEnded()
	}
	m.observer.Speaking(false)
	slog.Info("live: session released")
}

func (m *Manager) isCurrent(sc *sessionContext) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == sc
}

func (m *Manager) callbacks(sc *sessionContext) Callbacks {
	return Callbacks{
		OnOpen: func() {
			slog.Debug("live: remote open")
		},
		OnMessage: func(msg ServerMessage) {
			m.handleMessage(sc, msg)
		},
		OnError: func(err error) {
			m.remoteEnded(sc, EventRemoteError, err)
		},
		OnClose: func(reason string) {
			m.remoteEnded(sc, EventRemoteClose, nil)
			slog.Debug("live: remote closed", "reason", reason)
		},
	}
}

// remoteEnded tears down after the remote side failed or closed. Callbacks
// for a session that is no longer current are ignored.
func (m *Manager) remoteEnded(sc *sessionContext, ev Event, err error) {
	m.op.Lock()
	defer m.op.Unlock()
	if !m.isCurrent(sc) {
		return
	}
	switch {
	case err != nil && apierr.IsRateLimited(err):
		m.notice(NoticeRateLimit, "Rate limit reached. Wait a moment before starting again.")
	case err != nil:
		m.notice(NoticeError, "Connection error: "+err.Error())
	default:
		m.notice(NoticeInfo, "Session closed.")
	}
	_ = m.fire(context.Background(), ev)
}

func (m *Manager) handleMessage(sc *sessionContext, msg ServerMessage) {
	player, ok := sc.livePlayer()
	if !ok {
		return
	}

	if msg.InputTranscript != "" {
		sc.asm.AppendInput(msg.InputTranscript)
	}
	if msg.OutputTranscript != "" {
		sc.asm.AppendOutput(msg.OutputTranscript)
	}

	for _, part := range msg.Parts {
		switch {
		case pcm.IsAudio(part.MIMEType):
			if _, err := player.Enqueue(part.Data, part.MIMEType); err != nil {
				slog.Warn("live: schedule chunk", "error", err)
				continue
			}
			m.chunksPlayed.Add(1)
			m.metrics.ChunkPlayed()
		case strings.HasPrefix(part.MIMEType, "image/"):
			m.observer.Message(types.Message{
				ID:        uuid.NewString(),
				Role:      types.RoleAssistant,
				CreatedAt: time.Now(),
				Image: &types.Image{
					MIMEType: part.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(part.Data),
				},
			})
		}
	}

	if msg.Interrupted {
		player.Interrupt()
		m.interruptions.Add(1)
		m.metrics.Interrupted()
	}

	if msg.TurnComplete {
		for _, tm := range sc.asm.TurnComplete() {
			m.turns.Add(1)
			m.metrics.TranscriptMessage(tm.Role)
			m.observer.Message(tm)
		}
	}
}

func (m *Manager) speaking(sc *sessionContext, on bool) {
	if on && !m.isCurrent(sc) {
		return
	}
	m.observer.Speaking(on)
}

func (m *Manager) notice(kind NoticeKind, text string) {
	m.metrics.Notice(string(kind))
	m.observer.Notice(Notice{Kind: kind, Text: text})
}

func startFailureText(stage string, err error) string {
	switch stage {
	case "permission_denied":
		return "Microphone access was denied."
	case "connect":
		if apierr.IsRateLimited(err) {
			return "Rate limit reached. Wait a moment before starting again."
		}
		return "Could not connect to the model: " + err.Error()
	default:
		return "Could not start audio: " + err.Error()
	}
}

func resume(ctx context.Context, c audio.Context) error {
	if c.State() != audio.StateSuspended {
		return nil
	}
	return c.Resume(ctx)
}
