package session

import (
	"context"
	"sync"
	"time"

	"tasktree/api/internal/util"
)

// MemoryStore is a process-local store for tests and single-instance dev runs.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]Record
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Create(_ context.Context, record Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ExpiresAt = expiresAt(record, s.ttl, s.now())
	token := util.NewSecret()
	s.records[token] = record
	return token, nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[token]
	if !ok {
		return Record{}, ErrNotFound
	}
	if !s.now().Before(record.ExpiresAt) {
		delete(s.records, token)
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (s *MemoryStore) Clear(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, token)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len reports the number of live records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
