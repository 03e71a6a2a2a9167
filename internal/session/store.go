package session

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultMaxHistory bounds per-identity conversation history.
const DefaultMaxHistory = 10

// Message is a role-tagged rendering of history for prompt assembly.
type Message struct {
	Role    string
	Content string
}

// Store is the session abstraction the orchestrators depend on. All
// methods are safe for concurrent use across identities; callers are
// expected not to run concurrent turns for the same identity.
type Store interface {
	// Context renders the identity's memory record as a human-readable
	// block. Empty string when nothing is known.
	Context(identity string) string

	// Greeting returns a personalized greeting for the identity.
	Greeting(identity string) string

	// RecentMessages returns the last limit interactions formatted as
	// alternating user/assistant messages, oldest first.
	RecentMessages(identity string, limit int) []Message

	// RecordInteraction appends one exchange to history, evicting the
	// oldest entry when the history bound is exceeded.
	RecordInteraction(identity string, in Interaction) error

	// MergeMemory folds extracted facts into the identity's record.
	MergeMemory(identity string, rec MemoryRecord) error

	// Memory returns a copy of the identity's record. Zero record when
	// the identity is unknown.
	Memory(identity string) MemoryRecord
}

// MemStore is the process-lifetime in-memory store. Sessions are
// created lazily on first interaction and never destroyed.
type MemStore struct {
	mu         sync.RWMutex
	sessions   map[string]*state
	maxHistory int
}

type state struct {
	history []Interaction
	memory  MemoryRecord
}

// NewMemStore creates an in-memory session store.
func NewMemStore(maxHistory int) *MemStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &MemStore{
		sessions:   make(map[string]*state),
		maxHistory: maxHistory,
	}
}

func (s *MemStore) get(identity string) *state {
	st, ok := s.sessions[identity]
	if !ok {
		st = &state{}
		s.sessions[identity] = st
	}
	return st
}

// RecordInteraction appends an interaction, trimming oldest-first to
// the history bound.
func (s *MemStore) RecordInteraction(identity string, in Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(identity)
	st.history = append(st.history, in)
	if len(st.history) > s.maxHistory {
		st.history = st.history[len(st.history)-s.maxHistory:]
	}
	return nil
}

// History returns a copy of the identity's interactions, oldest first.
func (s *MemStore) History(identity string) []Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[identity]
	if !ok {
		return nil
	}
	out := make([]Interaction, len(st.history))
	copy(out, st.history)
	return out
}

// RecentMessages formats the last limit interactions for the prompt.
// Assistant entries that used tools carry a short annotation so the
// model knows the work was already done.
func (s *MemStore) RecentMessages(identity string, limit int) []Message {
	history := s.History(identity)
	return formatRecent(history, limit)
}

// MergeMemory folds facts into the identity's record.
func (s *MemStore) MergeMemory(identity string, rec MemoryRecord) error {
	if rec.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(identity).memory.Merge(rec)
	return nil
}

// Memory returns a copy of the identity's record.
func (s *MemStore) Memory(identity string) MemoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.sessions[identity]
	if !ok {
		return MemoryRecord{}
	}
	return st.memory.Clone()
}

// Context renders the memory record for prompt injection.
func (s *MemStore) Context(identity string) string {
	return FormatContext(s.Memory(identity))
}

// Greeting returns the personalized greeting.
func (s *MemStore) Greeting(identity string) string {
	return FormatGreeting(s.Memory(identity))
}

// formatRecent renders the newest limit interactions as alternating
// user/assistant messages.
func formatRecent(history []Interaction, limit int) []Message {
	if limit <= 0 {
		limit = 3
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	var msgs []Message
	for _, in := range history {
		msgs = append(msgs, Message{Role: "user", Content: in.User})

		content := in.Assistant
		if len(in.ToolCalls) > 0 {
			names := make([]string, len(in.ToolCalls))
			for i, tc := range in.ToolCalls {
				names[i] = fmt.Sprintf("调用了%s工具", tc.Tool)
			}
			content = fmt.Sprintf("%s (使用了工具: %s)", content, strings.Join(names, ", "))
		}
		msgs = append(msgs, Message{Role: "assistant", Content: content})
	}
	return msgs
}
