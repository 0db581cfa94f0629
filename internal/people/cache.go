package people

import (
	"fmt"
	"sync"

	"github.com/castsync/castsync/internal/metadata/douban"
	"github.com/castsync/castsync/internal/metadata/tmdb"
)

// Cache memoizes catalog lookups for the duration of one scan so siblings
// of an item (and episodes of a season) do not refetch the same records.
// It is cleared at scan boundaries and on a periodic item-count boundary;
// failed lookups are never cached, so an unresolved person retries on the
// next call.
type Cache struct {
	mu    sync.RWMutex
	items map[string]any
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]any)}
}

// PersonKey is the cache key for a primary-catalog person detail lookup.
func PersonKey(sourceID string) string {
	return "person:" + sourceID
}

// CreditsKey is the cache key for a credit-list lookup. Movie and TV ids
// are independent namespaces upstream, so the media type is part of the
// key. Season and episode of -1 select the broader series/movie scope.
func CreditsKey(mediaType, mediaID string, season, episode int) string {
	return fmt.Sprintf("credits:%s:%s:%d:%d", mediaType, mediaID, season, episode)
}

// CelebritiesKey is the cache key for a secondary-catalog lookup.
func CelebritiesKey(mediaType, mediaID string, season int) string {
	return fmt.Sprintf("celebrities:%s:%s:%d", mediaType, mediaID, season)
}

// Get retrieves a raw entry.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

// Set stores an entry.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]any)
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetPersonDetails retrieves a cached person detail record.
func (c *Cache) GetPersonDetails(key string) (*tmdb.PersonDetails, bool) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	details, ok := v.(*tmdb.PersonDetails)
	return details, ok
}

// GetCredits retrieves a cached credit set.
func (c *Cache) GetCredits(key string) (*tmdb.Credits, bool) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	credits, ok := v.(*tmdb.Credits)
	return credits, ok
}

// GetCelebrities retrieves a cached celebrity list.
func (c *Cache) GetCelebrities(key string) ([]douban.Celebrity, bool) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	celebs, ok := v.([]douban.Celebrity)
	return celebs, ok
}
