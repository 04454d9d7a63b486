package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	val []byte
	exp time.Time
}

// Memory 是进程内的 TTL 缓存，测试与未配置 redis 时使用。
type Memory struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]memoryItem)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(it.exp) {
		m.mu.Lock()
		// 惰性过期，重查避免覆盖并发写入的新值。
		if cur, ok := m.items[key]; ok && cur.exp.Equal(it.exp) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return it.val, true, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.items[key] = memoryItem{val: val, exp: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.items, k)
	}
	m.mu.Unlock()
	return nil
}
