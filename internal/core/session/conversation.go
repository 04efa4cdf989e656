package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyiyo/voxrelay/internal/core/history"
	"github.com/steveyiyo/voxrelay/internal/core/live"
	"github.com/steveyiyo/voxrelay/internal/core/prompt"
	"github.com/steveyiyo/voxrelay/internal/device/browser"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

// Client is the browser connection events are written to.
type Client interface {
	Emit(ev types.Event) error
}

// Conversation is one chat: its history, its prompt service and, while a
// browser is connected, a voice session manager bound to that browser.
type Conversation struct {
	ID        string
	CreatedAt time.Time

	cfg    live.SessionConfig
	deps   Deps
	hist   *history.Store
	prompt *prompt.Service

	mu       sync.Mutex
	att      *attachment
	retained live.Stats
}

// attachment binds one browser connection. It is the live.Observer of its
// manager, so a replaced connection never receives the new one's events.
type attachment struct {
	conv     *Conversation
	client   Client
	platform *browser.Platform
	manager  *live.Manager
}

// Attach binds client, replacing and stopping any previous connection. The
// returned platform receives the client's microphone replies and audio.
func (c *Conversation) Attach(client Client) *browser.Platform {
	a := &attachment{conv: c, client: client, platform: browser.New(client)}
	a.manager = live.NewManager(c.deps.Connector, a.platform, live.Config{
		APIKey:   c.deps.APIKey,
		Session:  c.cfg,
		Observer: a,
		Metrics:  c.deps.Metrics,
	})

	c.mu.Lock()
	prev := c.att
	c.att = a
	c.mu.Unlock()
	if prev != nil {
		c.release(prev)
	}

	a.emit(types.Event{Type: "hello", State: live.Idle.String()})
	return a.platform
}

// Detach releases client if it is still the attached one.
func (c *Conversation) Detach(client Client) {
	c.mu.Lock()
	a := c.att
	if a == nil || a.client != client {
		c.mu.Unlock()
		return
	}
	c.att = nil
	c.mu.Unlock()
	c.release(a)
}

func (c *Conversation) release(a *attachment) {
	a.platform.Close()
	a.manager.Stop()
	st := a.manager.Stats()

	c.mu.Lock()
	c.retained.FramesSent += st.FramesSent
	c.retained.FramesDropped += st.FramesDropped
	c.retained.FramesFailed += st.FramesFailed
	c.retained.ChunksPlayed += st.ChunksPlayed
	c.retained.Interruptions += st.Interruptions
	c.retained.Turns += st.Turns
	c.mu.Unlock()
}

func (c *Conversation) current() *attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.att
}

// Start begins a voice session on the attached browser.
func (c *Conversation) Start(ctx context.Context) error {
	a := c.current()
	if a == nil {
		return ErrNotAttached
	}
	return a.manager.Start(ctx)
}

// Stop ends the voice session, if any.
func (c *Conversation) Stop() {
	if a := c.current(); a != nil {
		a.manager.Stop()
	}
}

// Shutdown detaches whatever browser is connected.
func (c *Conversation) Shutdown() {
	if a := c.current(); a != nil {
		c.Detach(a.client)
	}
}

// State is the voice session state, idle when no browser is attached.
func (c *Conversation) State() live.State {
	if a := c.current(); a != nil {
		return a.manager.State()
	}
	return live.Idle
}

// Prompt runs a text prompt. See [prompt.Service.Submit].
func (c *Conversation) Prompt(ctx context.Context, mode, text string) (types.Message, error) {
	return c.prompt.Submit(ctx, mode, text)
}

func (c *Conversation) Messages() []types.Message { return c.hist.Messages() }

func (c *Conversation) HistoryKey() string { return c.hist.Key() }

func (c *Conversation) ClearMessages(ctx context.Context) error {
	return c.hist.Clear(ctx)
}

func (c *Conversation) DeleteMessage(ctx context.Context, id string) (bool, error) {
	return c.hist.Delete(ctx, id)
}

func (c *Conversation) Summary() types.SummaryResp {
	c.mu.Lock()
	st := c.retained
	a := c.att
	c.mu.Unlock()
	if a != nil {
		cur := a.manager.Stats()
		st.FramesSent += cur.FramesSent
		st.FramesDropped += cur.FramesDropped
		st.FramesFailed += cur.FramesFailed
		st.ChunksPlayed += cur.ChunksPlayed
		st.Interruptions += cur.Interruptions
		st.Turns += cur.Turns
	}
	return types.SummaryResp{
		SessionID:     c.ID,
		State:         c.State().String(),
		FramesSent:    st.FramesSent,
		FramesDropped: st.FramesDropped,
		FramesFailed:  st.FramesFailed,
		ChunksPlayed:  st.ChunksPlayed,
		Interruptions: st.Interruptions,
		Turns:         st.Turns,
		Messages:      c.hist.Len(),
	}
}

// record persists m and shows it on the attached browser.
func (c *Conversation) record(m types.Message) {
	if err := c.hist.Append(context.Background(), m); err != nil {
		slog.Error("session: persist message", "session_id", c.ID, "error", err)
	}
	if a := c.current(); a != nil {
		a.emit(types.Event{Type: "message", Message: &m})
	}
}

func (a *attachment) emit(ev types.Event) {
	if err := a.client.Emit(ev); err != nil {
		slog.Debug("session: emit", "session_id", a.conv.ID, "type", ev.Type, "error", err)
	}
}

func (a *attachment) StateChanged(s live.State) {
	a.emit(types.Event{Type: "state", State: s.String()})
}

func (a *attachment) InputLevel(rms float64) {
	a.emit(types.Event{Type: "level", Level: &rms})
}

func (a *attachment) Speaking(on bool) {
	a.emit(types.Event{Type: "speaking", Speaking: &on})
}

// Message persists a finalized turn. It is written to this attachment's
// client even if a newer one replaced it meanwhile.
func (a *attachment) Message(m types.Message) {
	if err := a.conv.hist.Append(context.Background(), m); err != nil {
		slog.Error("session: persist message", "session_id", a.conv.ID, "error", err)
	}
	a.emit(types.Event{Type: "message", Message: &m})
}

// Notice is shown to the user and kept in history as a system message.
func (a *attachment) Notice(n live.Notice) {
	a.emit(types.Event{Type: "notice", Notice: &types.Notice{Kind: string(n.Kind), Text: n.Text}})
	m := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleSystem,
		Text:      n.Text,
		CreatedAt: time.Now(),
	}
	if err := a.conv.hist.Append(context.Background(), m); err != nil {
		slog.Error("session: persist notice", "session_id", a.conv.ID, "error", err)
	}
}
