package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

// KVStore реализует локальное key/value хранилище с TTL.
type KVStore struct {
	mu    sync.RWMutex
	items map[string]kvEntry
	now   func() time.Time
}

// NewKVStore создаёт пустое in-memory хранилище.
func NewKVStore() *KVStore {
	return &KVStore{
		items: make(map[string]kvEntry),
		now:   time.Now,
	}
}

// Get возвращает копию значения или ErrKeyNotFound для отсутствующего/просроченного ключа.
func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrKeyNotFound
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if current, still := s.items[key]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, domain.ErrKeyNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// Set сохраняет значение. При ttl<=0 срок жизни не ограничен.
func (s *KVStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := kvEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.items[key] = entry
	s.mu.Unlock()
	return nil
}

// Delete удаляет ключ; отсутствие ключа не ошибка.
func (s *KVStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

var _ domain.KeyValueStore = (*KVStore)(nil)
