package types

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one finalized conversational turn.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Image     *Image    `json:"image,omitempty"`
}

// Image is an inline image payload carried by an assistant message.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type CreateSessionReq struct {
	Voice             string `json:"voice"`
	SystemInstruction string `json:"system_instruction"`
	HistoryKey        string `json:"history_key"`
}

type CreateSessionResp struct {
	SessionID string `json:"session_id"`
	WSURL     string `json:"ws_url"`
}

type SummaryResp struct {
	SessionID     string `json:"session_id"`
	State         string `json:"state"`
	FramesSent    int64  `json:"frames_sent"`
	FramesDropped int64  `json:"frames_dropped"`
	FramesFailed  int64  `json:"frames_failed"`
	ChunksPlayed  int64  `json:"chunks_played"`
	Interruptions int64  `json:"interruptions"`
	Turns         int64  `json:"turns"`
	Messages      int    `json:"messages"`
}

type PromptReq struct {
	Mode string `json:"mode"`
	Text string `json:"text"`
}

type MessagesResp struct {
	Messages []Message `json:"messages"`
}

// Event is the envelope for every server-to-browser stream message.
type Event struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`

	State    string   `json:"state,omitempty"`
	Level    *float64 `json:"level,omitempty"`
	Speaking *bool    `json:"speaking,omitempty"`
	Message  *Message `json:"message,omitempty"`
	Notice   *Notice  `json:"notice,omitempty"`
	Play     *Play    `json:"play,omitempty"`
	SourceID uint64   `json:"source_id,omitempty"`
}

// Notice is a user-visible system advisory.
type Notice struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// Play asks the browser to schedule a PCM buffer at At seconds on the output
// clock, measured from the clock epoch announced with the context.
type Play struct {
	SourceID uint64  `json:"source_id"`
	At       float64 `json:"at"`
	Duration float64 `json:"duration"`
	MIMEType string  `json:"mime_type"`
	Data     string  `json:"data"`
}

// ClientMsg is a browser-to-server text message on the stream.
type ClientMsg struct {
	Type    string `json:"type"`
	Granted bool   `json:"granted,omitempty"`
}

// Prompt modes.
const (
	ModeThinking = "thinking"
	ModeSearch   = "search"
	ModeImage    = "image"
)

// Reply is what the text endpoint produced for one prompt.
type Reply struct {
	Text  string
	Image *Image
}
