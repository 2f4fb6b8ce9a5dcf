package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager coordinates the memory and disk tiers. Reads check L1 then L2 and
// promote L2 hits; writes go to L1 synchronously and to L2 in the
// background.
type Manager struct {
	l1     *MemoryCache
	l2     *DiskCache // nil when the disk tier is disabled
	config Config
	logger *log.Logger

	mu     sync.Mutex
	closed bool
	writes sync.WaitGroup

	cleanupStop chan struct{}
	cleanupDone chan struct{}

	statsMu sync.Mutex
	l1Hits  int64
	l2Hits  int64
	misses  int64
}

// NewManager creates a cache manager. logger may be nil.
func NewManager(config Config, logger *log.Logger) (*Manager, error) {
	if config.MemoryEntries <= 0 {
		config.MemoryEntries = DefaultConfig().MemoryEntries
	}
	if config.MemoryCapacity <= 0 {
		config.MemoryCapacity = DefaultConfig().MemoryCapacity
	}
	if logger == nil {
		logger = log.Default()
	}

	l1, err := NewMemoryCache(config.MemoryEntries, config.MemoryCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	m := &Manager{
		l1:     l1,
		config: config,
		logger: logger.WithPrefix("cache"),
	}

	if config.DiskPath != "" {
		if config.DiskCapacity <= 0 {
			config.DiskCapacity = DefaultConfig().DiskCapacity
		}
		m.l2, err = NewDiskCache(config.DiskPath, config.DiskCapacity, config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		if config.CleanupInterval > 0 {
			m.startCleanup(config.CleanupInterval)
		}
	}

	return m, nil
}

// Get retrieves a value from the cache hierarchy.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.l1.Get(key); ok {
		m.count(&m.l1Hits)
		return data, true
	}
	if m.l2 != nil {
		if data, ok := m.l2.Get(key); ok {
			m.count(&m.l2Hits)
			_ = m.l1.Put(key, data)
			return data, true
		}
	}
	m.count(&m.misses)
	return nil, false
}

// Put stores a value in the cache hierarchy.
func (m *Manager) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if err := m.l1.Put(key, value); err != nil && !errors.Is(err, ErrItemTooLarge) {
		return fmt.Errorf("L1 cache error: %w", err)
	}

	if m.l2 != nil {
		m.writes.Add(1)
		go func() {
			defer m.writes.Done()
			if err := m.l2.Put(key, value); err != nil {
				m.logger.Warn("Disk cache write failed", "key", key, "error", err)
			}
		}()
	}
	return nil
}

// Delete removes an entry from every tier.
func (m *Manager) Delete(key string) {
	m.l1.Delete(key)
	if m.l2 != nil {
		m.l2.Delete(key)
	}
}

// Clear removes every entry.
func (m *Manager) Clear() error {
	m.writes.Wait()
	m.l1.Clear()
	if m.l2 != nil {
		return m.l2.Clear()
	}
	return nil
}

// Flush waits for pending disk writes.
func (m *Manager) Flush() {
	m.writes.Wait()
}

// ManagerStats aggregates the statistics of every tier.
type ManagerStats struct {
	L1Hits  int64
	L2Hits  int64
	Misses  int64
	HitRate float64
	Memory  Stats
	Disk    *Stats
}

// Stats returns aggregated statistics.
func (m *Manager) Stats() ManagerStats {
	m.statsMu.Lock()
	s := ManagerStats{L1Hits: m.l1Hits, L2Hits: m.l2Hits, Misses: m.misses}
	m.statsMu.Unlock()

	if total := s.L1Hits + s.L2Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.L1Hits+s.L2Hits) / float64(total)
	}
	s.Memory = m.l1.Stats()
	if m.l2 != nil {
		d := m.l2.Stats()
		s.Disk = &d
	}
	return s
}

// Close stops the cleanup routine, waits for pending writes and saves the
// disk index.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.cleanupStop != nil {
		close(m.cleanupStop)
		<-m.cleanupDone
	}
	m.writes.Wait()

	if m.l2 != nil {
		if err := m.l2.Close(); err != nil {
			return fmt.Errorf("failed to close disk cache: %w", err)
		}
	}
	return nil
}

func (m *Manager) count(n *int64) {
	m.statsMu.Lock()
	*n++
	m.statsMu.Unlock()
}

func (m *Manager) startCleanup(interval time.Duration) {
	m.cleanupStop = make(chan struct{})
	m.cleanupDone = make(chan struct{})

	go func() {
		defer close(m.cleanupDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.cleanup()
			case <-m.cleanupStop:
				return
			}
		}
	}()
}

// cleanup removes expired disk entries.
func (m *Manager) cleanup() {
	if m.l2 == nil || m.config.TTL <= 0 {
		return
	}
	if removed := m.l2.RemoveOlderThan(time.Now().Add(-m.config.TTL)); removed > 0 {
		m.logger.Debug("Expired disk cache entries", "removed", removed)
	}
}
