package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/steveyiyo/voxrelay/internal/core/live"
	"github.com/steveyiyo/voxrelay/internal/core/pcm"
)

func TestToServerMessage(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			InputTranscription:  &genai.Transcription{Text: "hi"},
			OutputTranscription: &genai.Transcription{Text: "hello"},
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{Text: "ignored"},
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 2}}},
			}},
			TurnComplete: true,
		},
	}
	got, ok := toServerMessage(msg)
	if !ok {
		t.Fatal("toServerMessage() reported nothing relevant")
	}
	if got.InputTranscript != "hi" || got.OutputTranscript != "hello" {
		t.Errorf("transcripts = %q, %q", got.InputTranscript, got.OutputTranscript)
	}
	if len(got.Parts) != 1 || got.Parts[0].MIMEType != "audio/pcm;rate=24000" {
		t.Errorf("parts = %+v", got.Parts)
	}
	if !got.TurnComplete || got.Interrupted {
		t.Errorf("flags = complete %v, interrupted %v", got.TurnComplete, got.Interrupted)
	}

	if _, ok := toServerMessage(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}); ok {
		t.Error("setup-only message reported as relevant")
	}
}

func TestConnectConfig(t *testing.T) {
	cc := connectConfig(live.SessionConfig{
		Voice:               "Puck",
		SystemInstruction:   "Be brief.",
		InputTranscription:  true,
		OutputTranscription: false,
	})
	if cc.SpeechConfig == nil || cc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
		t.Errorf("speech config = %+v", cc.SpeechConfig)
	}
	if cc.SystemInstruction == nil || cc.SystemInstruction.Parts[0].Text != "Be brief." {
		t.Errorf("system instruction = %+v", cc.SystemInstruction)
	}
	if cc.InputAudioTranscription == nil {
		t.Error("input transcription not requested")
	}
	if cc.OutputAudioTranscription != nil {
		t.Error("output transcription requested")
	}
	if len(cc.ResponseModalities) != 1 || cc.ResponseModalities[0] != genai.ModalityAudio {
		t.Errorf("modalities = %v", cc.ResponseModalities)
	}
}

func TestLiveSessionRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	setup := make(chan string, 1)
	input := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		setup <- string(msg)

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{`+
			`"inputTranscription":{"text":"hi"},`+
			`"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAAA"}}]},`+
			`"turnComplete":true}}`))

		_, msg, err = conn.ReadMessage()
		if err != nil {
			return
		}
		input <- string(msg)

		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	lc, err := NewLiveConnector(context.Background(), Options{
		APIKey:  "test-key",
		BaseURL: "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/",
	})
	if err != nil {
		t.Fatalf("NewLiveConnector() error = %v", err)
	}

	opened := make(chan struct{}, 1)
	messages := make(chan live.ServerMessage, 4)
	closed := make(chan string, 1)
	sess, err := lc.Connect(context.Background(), live.SessionConfig{Model: "live-model", Voice: "Puck", InputTranscription: true}, live.Callbacks{
		OnOpen:    func() { opened <- struct{}{} },
		OnMessage: func(m live.ServerMessage) { messages <- m },
		OnError:   func(err error) { t.Errorf("unexpected OnError: %v", err) },
		OnClose:   func(reason string) { closed <- reason },
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sess.Close()

	select {
	case s := <-setup:
		if !strings.Contains(s, `"voiceName":"Puck"`) || !strings.Contains(s, "inputAudioTranscription") {
			t.Errorf("setup message = %s", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no setup message")
	}

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("OnOpen not called")
	}

	select {
	case m := <-messages:
		if m.InputTranscript != "hi" || !m.TurnComplete || len(m.Parts) != 1 || len(m.Parts[0].Data) != 3 {
			t.Errorf("message = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no server message")
	}

	if err := sess.SendRealtimeInput(pcm.Encode(make([]float32, 8))); err != nil {
		t.Fatalf("SendRealtimeInput() error = %v", err)
	}
	select {
	case s := <-input:
		if !strings.Contains(s, "realtimeInput") || !strings.Contains(s, pcm.InputMIMEType) {
			t.Errorf("realtime input = %s", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no realtime input")
	}

	select {
	case reason := <-closed:
		if reason != "bye" {
			t.Errorf("close reason = %q, want bye", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}

	select {
	case <-sess.(*LiveSession).Done():
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop still running after remote close")
	}
}

func TestLiveSessionLocalClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"setupComplete":{}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	lc, err := NewLiveConnector(context.Background(), Options{
		APIKey:  "test-key",
		BaseURL: "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/",
	})
	if err != nil {
		t.Fatalf("NewLiveConnector() error = %v", err)
	}
	opened := make(chan struct{}, 1)
	closed := make(chan string, 1)
	sess, err := lc.Connect(context.Background(), live.SessionConfig{Model: "live-model"}, live.Callbacks{
		OnOpen:  func() { opened <- struct{}{} },
		OnError: func(err error) { t.Errorf("unexpected OnError: %v", err) },
		OnClose: func(reason string) { closed <- reason },
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("OnOpen not called")
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := sess.SendRealtimeInput(pcm.Encode(make([]float32, 8))); err == nil {
		t.Error("SendRealtimeInput() after Close succeeded")
	}

	select {
	case <-sess.(*LiveSession).Done():
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop still running after Close")
	}
	select {
	case reason := <-closed:
		if reason != "closed" {
			t.Errorf("close reason = %q, want closed", reason)
		}
	default:
		t.Error("OnClose not called before the receive loop exited")
	}
}
