// Package cache provides a two-level cache for synthesized audio and image
// summaries: an in-memory LRU (L1) in front of a zstd-compressed disk cache
// (L2) with TTL cleanup.
package cache
