package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyiyo/voxrelay/internal/core/history"
	"github.com/steveyiyo/voxrelay/internal/core/live"
	"github.com/steveyiyo/voxrelay/internal/core/prompt"
	"github.com/steveyiyo/voxrelay/internal/metrics"
	"github.com/steveyiyo/voxrelay/pkg/types"
)

// Deps are the collaborators shared by every conversation.
type Deps struct {
	APIKey    string
	Connector live.Connector
	Generator prompt.Generator
	KV        history.KV
	Metrics   *metrics.Metrics

	// Live holds the defaults for new conversations.
	Live          live.SessionConfig
	HistoryLimit  int
	PromptTimeout time.Duration
}

type Service struct {
	deps  Deps
	convs sync.Map
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps}
}

// Create opens the conversation's history and registers it.
func (s *Service) Create(ctx context.Context, req types.CreateSessionReq) (*Conversation, error) {
	id := "sess_" + uuid.NewString()

	cfg := s.deps.Live
	if req.Voice != "" {
		cfg.Voice = req.Voice
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = req.SystemInstruction
	}
	key := req.HistoryKey
	if key == "" {
		key = "history:" + id
	}

	hist, err := history.Open(ctx, s.deps.KV, key, s.deps.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	conv := &Conversation{
		ID:        id,
		CreatedAt: time.Now(),
		cfg:       cfg,
		deps:      s.deps,
		hist:      hist,
	}
	conv.prompt = prompt.NewService(s.deps.Generator, conv.record, prompt.Options{
		Timeout: s.deps.PromptTimeout,
		Metrics: s.deps.Metrics,
	})
	s.convs.Store(id, conv)
	slog.Info("session: created", "session_id", id, "history_key", key, "voice", cfg.Voice)
	return conv, nil
}

func (s *Service) Get(id string) (*Conversation, bool) {
	v, ok := s.convs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Conversation), true
}

func (s *Service) Summary(id string) (types.SummaryResp, bool) {
	conv, ok := s.Get(id)
	if !ok {
		return types.SummaryResp{}, false
	}
	return conv.Summary(), true
}

// Delete stops and forgets a conversation. Its history is kept.
func (s *Service) Delete(id string) bool {
	v, ok := s.convs.LoadAndDelete(id)
	if !ok {
		return false
	}
	v.(*Conversation).Shutdown()
	return true
}

// Shutdown stops every conversation.
func (s *Service) Shutdown() {
	s.convs.Range(func(_, v any) bool {
		v.(*Conversation).Shutdown()
		return true
	})
}

// ErrNotAttached is returned by voice operations when no browser is connected.
var ErrNotAttached = errors.New("session: no browser attached")
