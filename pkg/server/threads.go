package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ipoteka-ai/policyrag/pkg/llms"
)

// ThreadStore keeps conversation history per thread in memory.
type ThreadStore struct {
	mu      sync.RWMutex
	threads map[string][]llms.Message
}

func NewThreadStore() *ThreadStore {
	return &ThreadStore{threads: make(map[string][]llms.Message)}
}

// Resolve returns the history for a thread, minting a new thread ID
// when none is given.
func (s *ThreadStore) Resolve(threadID string) (string, []llms.Message) {
	if threadID == "" {
		return uuid.NewString(), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]llms.Message, len(s.threads[threadID]))
	copy(history, s.threads[threadID])
	return threadID, history
}

// Save replaces a thread's history with the post-turn transcript.
func (s *ThreadStore) Save(threadID string, messages []llms.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = messages
}

// Delete drops a thread's history.
func (s *ThreadStore) Delete(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
}
