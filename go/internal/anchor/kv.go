package anchor

import (
	"context"
	"sync"
)

// KV is the key-value persistence capability the anchor store is built on.
// Implementations only promise best-effort durability across process restarts.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SetIfAbsenter is implemented by backends that can store a value only when the key
// is missing in one step. It returns whichever value ends up stored.
type SetIfAbsenter interface {
	SetIfAbsent(ctx context.Context, key, value string) (string, error)
}

// MemoryKV keeps values for the lifetime of the process
type MemoryKV struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewMemoryKV creates an empty in-memory KV
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		values: make(map[string]string),
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryKV) SetIfAbsent(_ context.Context, key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.values[key]; ok {
		return existing, nil
	}
	m.values[key] = value
	return value, nil
}

// scopedKV prefixes every key with a user or profile scope
type scopedKV struct {
	kv     KV
	prefix string
}

// Scoped returns a KV whose keys live under scope. An empty scope returns kv unchanged.
func Scoped(kv KV, scope string) KV {
	if scope == "" {
		return kv
	}
	return &scopedKV{kv: kv, prefix: scope + "/"}
}

func (s *scopedKV) Get(ctx context.Context, key string) (string, bool, error) {
	return s.kv.Get(ctx, s.prefix+key)
}

func (s *scopedKV) Set(ctx context.Context, key, value string) error {
	return s.kv.Set(ctx, s.prefix+key, value)
}

func (s *scopedKV) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, s.prefix+key)
}

func (s *scopedKV) SetIfAbsent(ctx context.Context, key, value string) (string, error) {
	return setIfAbsent(ctx, s.kv, s.prefix+key, value)
}

// setIfAbsent uses the backend's atomic variant when it has one and falls back to get-then-set.
func setIfAbsent(ctx context.Context, kv KV, key, value string) (string, error) {
	if sia, ok := kv.(SetIfAbsenter); ok {
		return sia.SetIfAbsent(ctx, key, value)
	}

	existing, ok, err := kv.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if ok {
		return existing, nil
	}
	if err := kv.Set(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}
