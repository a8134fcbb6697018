package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	counter   Counter
	expiresAt time.Time
}

// MemoryStore はプロセス内メモリにカウンタを保持するStore。
// 単一プロセス構成や開発環境向け。期限切れエントリはバックグラウンドで削除する。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewMemoryStore はMemoryStoreを生成し、期限切れエントリのクリーンアップを開始する。
// cleanupIntervalが0以下の場合はクリーンアップを行わない。
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:         make(map[string]memoryEntry),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// Get はカウンタを返す。存在しないか期限切れの場合は (nil, nil)。
func (s *MemoryStore) Get(_ context.Context, key string) (*Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key, s.now())
	if !ok {
		return nil, nil
	}
	c := e.counter
	return &c, nil
}

// Set はカウンタをTTL付きで保存する。
func (s *MemoryStore) Set(_ context.Context, key string, counter Counter, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{counter: counter, expiresAt: s.now().Add(ttl)}
	return nil
}

// Increment は1つのクリティカルセクション内でカウンタを加算する。
func (s *MemoryStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *Counter
	if e, ok := s.lookup(key, now); ok {
		current = &e.counter
	}
	next := Advance(current, now, window)
	s.entries[key] = memoryEntry{counter: next, expiresAt: now.Add(window)}
	return next, nil
}

// Len は保持中のエントリ数を返す。テストおよびメトリクス用。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup は期限内のエントリを返す。呼び出し側でロックを保持すること。
func (s *MemoryStore) lookup(key string, now time.Time) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !now.Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的に削除する。
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.purgeExpired()
		case <-s.stopCh:
			return
		}
	}
}

// purgeExpired は期限切れエントリをすべて削除する。
func (s *MemoryStore) purgeExpired() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// compile-time interface check
var (
	_ Store       = (*MemoryStore)(nil)
	_ Incrementer = (*MemoryStore)(nil)
)
