// Package prompt runs one-shot text prompts against the generate-content
// endpoint and records both sides of the exchange.
package prompt

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/steveyiyo/voxrelay/internal/core/apierr"
	"github.com/steveyiyo/voxrelay/internal/metrics"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

var (
	ErrBusy        = errors.New("prompt: a request is already in flight")
	ErrEmptyPrompt = errors.New("prompt: empty prompt")
	ErrUnknownMode = errors.New("prompt: unknown mode")
	ErrNoGenerator = errors.New("prompt: API key is not configured")
)

const (
	fallbackText  = "Sorry, I couldn't get a response. Please try again."
	rateLimitText = "Rate limit reached. Please wait a moment before sending another prompt."
)

// Generator produces a reply for one prompt in the given mode.
type Generator interface {
	Generate(ctx context.Context, mode, text string) (types.Reply, error)
}

// Recorder receives every message the service produces, in order.
type Recorder func(types.Message)

// Service allows one request in flight at a time.
type Service struct {
	gen     Generator
	record  Recorder
	timeout time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	busy atomic.Bool
}

type Options struct {
	// Timeout bounds one request. Zero means no bound beyond the caller's ctx.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// NewService returns a service. gen may be nil when no API key is configured;
// every Submit then fails with ErrNoGenerator.
func NewService(gen Generator, record Recorder, opts Options) *Service {
	if record == nil {
		record = func(types.Message) {}
	}
	return &Service{
		gen:     gen,
		record:  record,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// ValidMode reports whether mode is a known prompt mode.
func ValidMode(mode string) bool {
	switch mode {
	case types.ModeThinking, types.ModeSearch, types.ModeImage:
		return true
	}
	return false
}

// Busy reports whether a request is in flight.
func (s *Service) Busy() bool { return s.busy.Load() }

// Submit records the user message, asks the generator and records the
// assistant reply. A failed request still yields an assistant message
// carrying a fallback or rate-limit advisory; the error is returned alongside
// it. Validation errors and ErrBusy return before anything is recorded.
func (s *Service) Submit(ctx context.Context, mode, text string) (types.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Message{}, ErrEmptyPrompt
	}
	if !ValidMode(mode) {
		return types.Message{}, ErrUnknownMode
	}
	if s.gen == nil {
		return types.Message{}, ErrNoGenerator
	}
	if !s.busy.CompareAndSwap(false, true) {
		return types.Message{}, ErrBusy
	}
	defer s.busy.Store(false)

	s.record(s.message(types.RoleUser, text))

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.gen.Generate(ctx, mode, text)
	if err == nil && reply.Text == "" && reply.Image == nil {
		err = errors.New("prompt: empty reply")
	}

	var out types.Message
	switch {
	case err == nil:
		s.metrics.ObservePrompt(mode, "ok", time.Since(start))
		out = s.message(types.RoleAssistant, reply.Text)
		out.Image = reply.Image
	case apierr.IsRateLimited(err):
		s.metrics.ObservePrompt(mode, "rate_limited", time.Since(start))
		slog.Warn("prompt: rate limited", "mode", mode, "error", err)
		out = s.message(types.RoleAssistant, rateLimitText)
	default:
		s.metrics.ObservePrompt(mode, "error", time.Since(start))
		slog.Error("prompt: request failed", "mode", mode, "error", err)
		out = s.message(types.RoleAssistant, fallbackText)
	}
	s.record(out)
	return out, err
}

func (s *Service) message(role, text string) types.Message {
	return types.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
	}
}
