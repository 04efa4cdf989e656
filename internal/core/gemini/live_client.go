package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/steveyiyo/voxrelay/internal/core/live"
	"github.com/steveyiyo/voxrelay/internal/core/pcm"
)

// LiveConnector opens bidirectional audio sessions on the Live API.
type LiveConnector struct {
	c *genai.Client
}

// NewLiveConnector creates a connector. The Live API is only served on the
// v1beta surface. A ws:// BaseURL is kept as is, anything else is dialed
// over wss.
func NewLiveConnector(ctx context.Context, opts Options) (*LiveConnector, error) {
	cl, err := newGenAI(ctx, opts, "v1beta")
	if err != nil {
		return nil, err
	}
	return &LiveConnector{c: cl}, nil
}

// Connect dials the session, sends the setup message and starts the receive
// loop. Callbacks are delivered from that loop.
func (lc *LiveConnector) Connect(ctx context.Context, cfg live.SessionConfig, cb live.Callbacks) (live.Session, error) {
	sess, err := lc.c.Live.Connect(ctx, cfg.Model, connectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("gemini: live connect: %w", err)
	}
	ls := &LiveSession{s: sess, cb: cb, done: make(chan struct{})}
	go ls.readMessages()
	return ls, nil
}

func connectConfig(cfg live.SessionConfig) *genai.LiveConnectConfig {
	cc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Voice != "" {
		cc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		cc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.InputTranscription {
		cc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		cc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return cc
}

// LiveSession is an open Live API session.
type LiveSession struct {
	s      *genai.Session
	cb     live.Callbacks
	closed atomic.Bool
	done   chan struct{}
}

// SendRealtimeInput forwards one encoded microphone chunk.
func (ls *LiveSession) SendRealtimeInput(chunk pcm.EncodedChunk) error {
	if ls.closed.Load() {
		return errors.New("gemini: session closed")
	}
	data, err := chunk.Bytes()
	if err != nil {
		return err
	}
	return ls.s.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: chunk.MIMEType, Data: data},
	})
}

// Close terminates the connection. Safe to call more than once.
func (ls *LiveSession) Close() error {
	if !ls.closed.CompareAndSwap(false, true) {
		return nil
	}
	return ls.s.Close()
}

// Done is closed when the receive loop has exited.
func (ls *LiveSession) Done() <-chan struct{} { return ls.done }

// readMessages runs in a goroutine, continuously reading from the session.
func (ls *LiveSession) readMessages() {
	defer close(ls.done)
	for {
		msg, err := ls.s.Receive()
		if err != nil {
			ls.finish(err)
			return
		}
		if msg.SetupComplete != nil && ls.cb.OnOpen != nil {
			ls.cb.OnOpen()
		}
		if msg.GoAway != nil {
			slog.Warn("gemini: live session going away", "time_left", msg.GoAway.TimeLeft)
		}
		if sm, ok := toServerMessage(msg); ok && ls.cb.OnMessage != nil {
			ls.cb.OnMessage(sm)
		}
	}
}

func (ls *LiveSession) finish(err error) {
	var ce *websocket.CloseError
	switch {
	case ls.closed.Load():
		if ls.cb.OnClose != nil {
			ls.cb.OnClose("closed")
		}
	case errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure:
		if ls.cb.OnClose != nil {
			ls.cb.OnClose(ce.Text)
		}
	default:
		slog.Warn("gemini: live receive", "error", err)
		if ls.cb.OnError != nil {
			ls.cb.OnError(err)
		}
	}
}

// toServerMessage reduces a Live API message to what the pipeline consumes.
// It reports false when nothing in msg is relevant.
func toServerMessage(msg *genai.LiveServerMessage) (live.ServerMessage, bool) {
	var out live.ServerMessage
	sc := msg.ServerContent
	if sc == nil {
		return out, false
	}
	if sc.InputTranscription != nil {
		out.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		out.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			out.Parts = append(out.Parts, live.InlineData{
				MIMEType: p.InlineData.MIMEType,
				Data:     p.InlineData.Data,
			})
		}
	}
	out.TurnComplete = sc.TurnComplete
	out.Interrupted = sc.Interrupted
	return out, true
}
