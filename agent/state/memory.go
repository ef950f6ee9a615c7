package state

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded session state in process. Nothing expires.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (*SessionState, error) {
	key, err := redisKey("", sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	payload, ok := s.sessions[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}
	return decodeState(payload)
}

func (s *MemoryStore) Save(_ context.Context, st *SessionState) error {
	payload, err := encodeState(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[st.SessionID] = payload
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
