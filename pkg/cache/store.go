package cache

import (
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store 是所有 TTL 缓存共享的键值存储，显式地管理生命周期：
// Init 创建底层缓存，Invalidate 清除部分或全部键，Teardown 释放。
// Teardown 之后的读取全部未命中，写入被丢弃，直到再次 Init。
type Store struct {
	mu      sync.RWMutex
	c       *gocache.Cache
	cleanup time.Duration
}

// NewStore 创建并初始化一个 Store。cleanupInterval 是过期键的清理周期。
func NewStore(cleanupInterval time.Duration) *Store {
	s := &Store{cleanup: cleanupInterval}
	s.Init()
	return s
}

func (s *Store) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		// 默认不过期，每个写入方都给出自己的 TTL。
		s.c = gocache.New(gocache.NoExpiration, s.cleanup)
	}
}

// Invalidate 删除给定的键；不传键时清空全部。
func (s *Store) Invalidate(keys ...string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.c == nil {
		return
	}
	if len(keys) == 0 {
		slog.Debug("清空全部缓存")
		s.c.Flush()
		return
	}
	for _, k := range keys {
		s.c.Delete(k)
	}
}

func (s *Store) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.c.Flush()
		s.c = nil
	}
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.c == nil {
		return nil, false
	}
	return s.c.Get(key)
}

// GetWithExpiration 额外返回过期时间；没有过期时间时返回零值。
func (s *Store) GetWithExpiration(key string) (any, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.c == nil {
		return nil, time.Time{}, false
	}
	return s.c.GetWithExpiration(key)
}

// Set 写入一个键。ttl <= 0 表示永不过期。
func (s *Store) Set(key string, value any, ttl time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.c == nil {
		return
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.c.Set(key, value, ttl)
}

// SetUntil 写入一个键并保持给定的过期时刻，零值表示永不过期。
func (s *Store) SetUntil(key string, value any, expiresAt time.Time) {
	if expiresAt.IsZero() {
		s.Set(key, value, gocache.NoExpiration)
		return
	}
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		s.Invalidate(key)
		return
	}
	s.Set(key, value, remaining)
}

func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.c == nil {
		return 0
	}
	return s.c.ItemCount()
}

// Remember 返回缓存值；未命中时调用 fn 并以 ttl 写入。fn 出错时不写入。
func Remember[V any](s *Store, key string, ttl time.Duration, fn func() (V, error)) (V, error) {
	if v, ok := s.Get(key); ok {
		if typed, ok := v.(V); ok {
			return typed, nil
		}
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	s.Set(key, v, ttl)
	return v, nil
}
