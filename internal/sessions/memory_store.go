package sessions

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore mirrors the Store contract for tests and headless hosts.
//
// FailNext, when set, is consulted once per operation before it runs; a
// non-nil return is surfaced as that operation's error. Tests use it to
// simulate contention without a real lock fight.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	byID     map[int64]TaskSession
	FailNext func(op string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		byID:   make(map[int64]TaskSession),
	}
}

func (s *MemoryStore) failHook(op string) error {
	if s.FailNext == nil {
		return nil
	}
	return s.FailNext(op)
}

func (s *MemoryStore) Add(_ context.Context, session TaskSession) (int64, error) {
	if err := session.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failHook("add"); err != nil {
		return 0, err
	}

	session.ID = s.nextID
	session.Synced = false
	s.nextID++
	s.byID[session.ID] = session
	return session.ID, nil
}

func (s *MemoryStore) Unsynced(_ context.Context) ([]TaskSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failHook("unsynced"); err != nil {
		return nil, err
	}

	result := make([]TaskSession, 0)
	for _, session := range s.byID {
		if !session.Synced {
			result = append(result, session)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) MarkSynced(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failHook("mark_synced"); err != nil {
		return false, err
	}

	session, ok := s.byID[id]
	if !ok || session.Synced {
		return false, nil
	}
	session.Synced = true
	s.byID[id] = session
	return true, nil
}

func (s *MemoryStore) All(_ context.Context) ([]TaskSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failHook("all"); err != nil {
		return nil, err
	}

	result := make([]TaskSession, 0, len(s.byID))
	for _, session := range s.byID {
		result = append(result, session)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date > result[j].Date
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
