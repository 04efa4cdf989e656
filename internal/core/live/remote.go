package live

import (
	"context"

	"github.com/steveyiyo/voxrelay/internal/core/pcm"
)

// SessionConfig is sent to the remote service when a session is opened.
type SessionConfig struct {
	Model               string
	Voice               string
	SystemInstruction   string
	InputTranscription  bool
	OutputTranscription bool
}

// InlineData is a binary part of a model turn, audio or image.
type InlineData struct {
	MIMEType string
	Data     []byte
}

// ServerMessage is one inbound message of the remote session reduced to what
// the pipeline consumes.
type ServerMessage struct {
	InputTranscript  string
	OutputTranscript string
	Parts            []InlineData
	TurnComplete     bool
	Interrupted      bool
}

// Callbacks receive the remote session's events. They are invoked from the
// connector's receive goroutine, never from within Connect.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(ServerMessage)
	OnError   func(error)
	OnClose   func(reason string)
}

// Session is an open bidirectional streaming session.
type Session interface {
	// SendRealtimeInput forwards one encoded microphone chunk.
	SendRealtimeInput(chunk pcm.EncodedChunk) error

	// Close terminates the session. After Close no callback other than a
	// final OnClose is delivered.
	Close() error
}

// Connector opens remote sessions.
type Connector interface {
	Connect(ctx context.Context, cfg SessionConfig, cb Callbacks) (Session, error)
}
