package state

import (
	"context"
	"sync"
	"time"
)

type memoryManager[T any] struct {
	mu       sync.RWMutex
	sessions map[int64]Session[T]
	locks    keyedMutex
	now      func() time.Time
}

// NewMemoryManager constructs an in-memory Manager for a single bot process.
func NewMemoryManager[T any]() Manager[T] {
	return &memoryManager[T]{
		sessions: make(map[int64]Session[T]),
		now:      time.Now,
	}
}

func (m *memoryManager[T]) Get(_ context.Context, userID int64) (Session[T], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}
	return Session[T]{State: StateIdle}, nil
}

func (m *memoryManager[T]) Update(_ context.Context, userID int64, fn func(*Session[T])) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = Session[T]{State: StateIdle}
	}
	fn(&s)
	s.UpdatedAt = m.now()
	m.sessions[userID] = s
	return nil
}

func (m *memoryManager[T]) SetState(ctx context.Context, userID int64, st State) error {
	return m.Update(ctx, userID, func(s *Session[T]) { s.State = st })
}

func (m *memoryManager[T]) CurrentState(ctx context.Context, userID int64) (State, error) {
	s, err := m.Get(ctx, userID)
	return s.State, err
}

func (m *memoryManager[T]) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *memoryManager[T]) Lock(userID int64) func() {
	return m.locks.Lock(userID)
}

func (m *memoryManager[T]) Ping(context.Context) error { return nil }
