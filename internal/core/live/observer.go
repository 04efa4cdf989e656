package live

import "github.com/steveyiyo/voxrelay/pkg/types"

// NoticeKind classifies a [Notice].
type NoticeKind string

const (
	NoticeInfo      NoticeKind = "info"
	NoticeError     NoticeKind = "error"
	NoticeRateLimit NoticeKind = "rate_limit"
)

// Notice is a user-visible system message produced instead of an error when a
// failure cannot be returned to a caller.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Observer receives everything the UI renders. Methods may be called from
// several goroutines and must not block.
type Observer interface {
	StateChanged(State)
	InputLevel(rms float64)
	Speaking(bool)
	Message(types.Message)
	Notice(Notice)
}

// NopObserver discards every notification.
type NopObserver struct{}

func (NopObserver) StateChanged(State)    {}
func (NopObserver) InputLevel(float64)    {}
func (NopObserver) Speaking(bool)         {}
func (NopObserver) Message(types.Message) {}
func (NopObserver) Notice(Notice)         {}
