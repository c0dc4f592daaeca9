package services

import (
	"sync"

	"github.com/noah-andersen/ebay-card-scraper/internal/metrics"
	"github.com/noah-andersen/ebay-card-scraper/internal/models"
)

// Deduplicator tracks listing identity keys already captured. It is safe for
// concurrent use.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Seed marks every listing of a previously persisted dataset as seen, so a
// rerun over the same raw input adds nothing.
func (d *Deduplicator) Seed(listings []models.Listing) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range listings {
		d.seen[listings[i].Key()] = struct{}{}
	}
	metrics.DedupKeysTracked.Set(float64(len(d.seen)))
}

// SeedKeys marks precomputed identity keys as seen.
func (d *Deduplicator) SeedKeys(keys []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		d.seen[k] = struct{}{}
	}
	metrics.DedupKeysTracked.Set(float64(len(d.seen)))
}

// IsNew reports whether key has not been seen yet.
func (d *Deduplicator) IsNew(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return !ok
}

// MarkSeen records key.
func (d *Deduplicator) MarkSeen(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = struct{}{}
	metrics.DedupKeysTracked.Set(float64(len(d.seen)))
}

// Claim atomically checks and records key, returning true if it was new.
func (d *Deduplicator) Claim(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	metrics.DedupKeysTracked.Set(float64(len(d.seen)))
	return true
}

// Forget unmarks keys, for listings that were accepted but never persisted.
func (d *Deduplicator) Forget(keys ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		delete(d.seen, k)
	}
	metrics.DedupKeysTracked.Set(float64(len(d.seen)))
}

// Len returns the number of tracked keys.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
