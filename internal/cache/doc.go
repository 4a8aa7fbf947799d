// Package cache provides a byte-bounded LRU for decoded episode records.
//
// Records are immutable once committed, so entries never go stale while the
// backend that filled them is open. A nil *LRU is a valid, disabled cache.
package cache
