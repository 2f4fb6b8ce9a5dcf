package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by Put after Close.
	ErrClosed = errors.New("cache closed")
)

// Level represents the cache tier.
type Level int

const (
	// LevelMemory is the in-memory LRU.
	LevelMemory Level = iota
	// LevelDisk is the persistent compressed cache.
	LevelDisk
)

// String returns the string representation of the cache level.
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "L1-Memory"
	case LevelDisk:
		return "L2-Disk"
	default:
		return "Unknown"
	}
}

// Stats holds cache performance metrics.
type Stats struct {
	Capacity  int64   // Maximum capacity in bytes
	Size      int64   // Current size in bytes
	ItemCount int64   // Number of items in cache
	Hits      int64   // Number of cache hits
	Misses    int64   // Number of cache misses
	Evictions int64   // Number of evictions
	HitRate   float64 // hits / (hits + misses)
}

func (s *Stats) computeHitRate() {
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
}

// Config holds configuration for a Manager.
type Config struct {
	// Memory cache (L1)
	MemoryEntries  int   // Maximum number of entries
	MemoryCapacity int64 // Bytes

	// Disk cache (L2). An empty DiskPath disables it.
	DiskPath         string
	DiskCapacity     int64 // Bytes
	CompressionLevel int   // zstd level (1-22), 0 disables compression

	TTL             time.Duration // Age after which disk entries expire
	CleanupInterval time.Duration // How often to run cleanup, 0 disables it
}

// DefaultConfig returns default cache configuration without a disk tier.
func DefaultConfig() Config {
	return Config{
		MemoryEntries:    256,
		MemoryCapacity:   64 * 1024 * 1024,  // 64MB
		DiskCapacity:     512 * 1024 * 1024, // 512MB
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Key derives a cache key from parts. Parts are separated so that
// ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:16])
}
