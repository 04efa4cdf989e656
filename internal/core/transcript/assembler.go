// Package transcript accumulates partial speech-to-text fragments from the
// live session and turns them into discrete messages at turn boundaries.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyiyo/voxrelay/pkg/types"
)

// Assembler holds the input (user) and output (assistant) buffers of the
// current turn. It is safe for concurrent use.
type Assembler struct {
	mu     sync.Mutex
	input  strings.Builder
	output strings.Builder

	now func() time.Time
}

// NewAssembler returns an empty Assembler.
func NewAssembler() *Assembler {
	return &Assembler{now: time.Now}
}

// AppendInput adds a fragment of the user's recognised speech.
func (a *Assembler) AppendInput(fragment string) {
	a.mu.Lock()
	a.input.WriteString(fragment)
	a.mu.Unlock()
}

// AppendOutput adds a fragment of the assistant's spoken response.
func (a *Assembler) AppendOutput(fragment string) {
	a.mu.Lock()
	a.output.WriteString(fragment)
	a.mu.Unlock()
}

// TurnComplete flushes both buffers. It returns the user message (if any input
// was heard) followed by the assistant message (if any output was produced),
// and leaves both buffers empty.
func (a *Assembler) TurnComplete() []types.Message {
	a.mu.Lock()
	in, out := a.input.String(), a.output.String()
	a.input.Reset()
	a.output.Reset()
	a.mu.Unlock()

	var msgs []types.Message
	if in != "" {
		msgs = append(msgs, a.message(types.RoleUser, in))
	}
	if out != "" {
		msgs = append(msgs, a.message(types.RoleAssistant, out))
	}
	return msgs
}

// Pending returns the buffered input and output text of the current turn.
func (a *Assembler) Pending() (input, output string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input.String(), a.output.String()
}

// Reset discards the current turn.
func (a *Assembler) Reset() {
	a.mu.Lock()
	a.input.Reset()
	a.output.Reset()
	a.mu.Unlock()
}

func (a *Assembler) message(role, text string) types.Message {
	return types.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: a.now(),
	}
}
