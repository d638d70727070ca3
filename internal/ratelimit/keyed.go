package ratelimit

import (
	"sync"
	"time"
)

// Recorder receives limiter events. metrics.Metrics implements it.
type Recorder interface {
	RecordRateLimiterDrop(limiter string)
	SetRateLimiterKeys(limiter string, count int)
}

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name identifies this limiter for metrics (e.g., "user", "llm")
	Name string

	Burst      float64 // Maximum tokens (burst capacity)
	RefillRate float64 // Tokens refilled per second

	// DailyLimit caps events per key over a rolling 24h window (0 = disabled).
	DailyLimit int

	// CleanupPeriod is how often idle keys are dropped (0 = never).
	CleanupPeriod time.Duration

	Recorder Recorder
}

// KeyedLimiter keeps one bucket (and optional daily window) per key, e.g.
// per LINE user id or API subject.
type KeyedLimiter struct {
	mu       sync.RWMutex
	entries  map[string]*keyedEntry
	config   KeyedConfig
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// keyedEntry serializes the check-then-consume across both layers.
type keyedEntry struct {
	mu     sync.Mutex
	bucket *Bucket
	daily  *Window
}

// NewKeyedLimiter starts the cleanup goroutine; call Stop when done.
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	kl := newKeyedLimiter(cfg, time.Now)
	if cfg.CleanupPeriod > 0 {
		go kl.cleanupLoop()
	}
	return kl
}

func newKeyedLimiter(cfg KeyedConfig, now func() time.Time) *KeyedLimiter {
	return &KeyedLimiter{
		entries: make(map[string]*keyedEntry),
		config:  cfg,
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

// Allow consumes one event for key. Both the bucket and the daily window
// must have room; nothing is consumed otherwise. An empty key is always
// allowed.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	entry := kl.entry(key)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.daily != nil && !entry.daily.allowed() {
		kl.drop()
		return false
	}
	if !entry.bucket.Allow() {
		kl.drop()
		return false
	}
	if entry.daily != nil {
		entry.daily.add()
	}
	return true
}

// DailyRemaining returns the key's remaining daily quota, or -1 when the
// daily limit is disabled.
func (kl *KeyedLimiter) DailyRemaining(key string) int {
	if kl.config.DailyLimit <= 0 {
		return -1
	}
	kl.mu.RLock()
	entry, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return kl.config.DailyLimit
	}
	return entry.daily.Remaining()
}

// ActiveKeys returns the number of tracked keys.
func (kl *KeyedLimiter) ActiveKeys() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.entries)
}

func (kl *KeyedLimiter) entry(key string) *keyedEntry {
	kl.mu.RLock()
	e, ok := kl.entries[key]
	kl.mu.RUnlock()
	if ok {
		return e
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()
	if e, ok = kl.entries[key]; ok {
		return e
	}
	e = &keyedEntry{
		bucket: newBucket(kl.config.Burst, kl.config.RefillRate, kl.now),
		daily:  newWindow(kl.config.DailyLimit, 24*time.Hour, kl.now),
	}
	kl.entries[key] = e
	return e
}

func (kl *KeyedLimiter) drop() {
	if kl.config.Recorder != nil {
		kl.config.Recorder.RecordRateLimiterDrop(kl.config.Name)
	}
}

// sweep drops idle keys: full bucket and, when enabled, an empty daily
// window.
func (kl *KeyedLimiter) sweep() int {
	kl.mu.Lock()
	for key, e := range kl.entries {
		idle := e.bucket.full()
		if e.daily != nil && e.daily.Remaining() < kl.config.DailyLimit {
			idle = false
		}
		if idle {
			delete(kl.entries, key)
		}
	}
	n := len(kl.entries)
	kl.mu.Unlock()

	if kl.config.Recorder != nil {
		kl.config.Recorder.SetRateLimiterKeys(kl.config.Name, n)
	}
	return n
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.sweep()
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	kl.stopOnce.Do(func() { close(kl.stopCh) })
}
