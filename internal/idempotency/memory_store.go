package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/blues/fundvault/internal/clock"
)

type memoryEntry struct {
	entry
	expiresAt time.Time
}

// MemoryStore 进程内幂等键存储, 未启用 redis 时使用
type MemoryStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]memoryEntry
}

// NewMemoryStore 创建进程内幂等键存储
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{clock: clk, entries: make(map[string]memoryEntry)}
}

// get 读取未过期的键, 调用方需持有锁
func (s *MemoryStore) get(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

func (s *MemoryStore) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Response, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.get(key)
	if !ok || e.Response == nil {
		return nil, false, nil
	}
	resp := *e.Response
	return &resp, true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, resp *Response, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *resp
	s.entries[key] = memoryEntry{entry: entry{Response: &saved}, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
