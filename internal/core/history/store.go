// Package history persists the conversation's finalized messages as one JSON
// document under a single key of a flat key-value store.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/steveyiyo/voxrelay/pkg/types"
)

// DefaultLimit is the number of messages kept when Open is given no limit.
const DefaultLimit = 50

// KV is a flat string key-value store.
type KV interface {
	// Get returns the value under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store is a size-bounded ordered message sequence. Every change is written
// through to the KV.
type Store struct {
	mu    sync.Mutex
	kv    KV
	key   string
	limit int
	msgs  []types.Message
}

// Open reads the sequence stored under key. A missing key starts empty. A
// value that does not decode is logged and replaced by an empty history on
// the next write.
func Open(ctx context.Context, kv KV, key string, limit int) (*Store, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s := &Store{kv: kv, key: key, limit: limit}

	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("history: read %q: %w", key, err)
	}
	if !ok || raw == "" {
		return s, nil
	}
	var msgs []types.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		slog.Warn("history: discarding malformed history", "key", key, "error", err)
		return s, nil
	}
	s.msgs = trim(msgs, limit)
	return s, nil
}

// Key returns the storage key.
func (s *Store) Key() string { return s.key }

// Append adds m, dropping the oldest messages past the limit.
func (s *Store) Append(ctx context.Context, m types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = trim(append(s.msgs, m), s.limit)
	return s.persistLocked(ctx)
}

// Delete removes the message with the given id. It reports whether one was
// found.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.msgs {
		if m.ID != id {
			continue
		}
		s.msgs = append(s.msgs[:i:i], s.msgs[i+1:]...)
		return true, s.persistLocked(ctx)
	}
	return false, nil
}

// Clear empties the history and removes the key.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("history: clear %q: %w", s.key, err)
	}
	s.msgs = nil
	return nil
}

// Messages returns a copy of the sequence, oldest first.
func (s *Store) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *Store) persistLocked(ctx context.Context) error {
	msgs := s.msgs
	if msgs == nil {
		msgs = []types.Message{}
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(b)); err != nil {
		return fmt.Errorf("history: write %q: %w", s.key, err)
	}
	return nil
}

func trim(msgs []types.Message, limit int) []types.Message {
	if len(msgs) <= limit {
		return msgs
	}
	out := make([]types.Message, limit)
	copy(out, msgs[len(msgs)-limit:])
	return out
}

// Lister is a KV that can enumerate its keys.
type Lister interface {
	KV
	Keys(ctx context.Context) ([]string, error)
}
