package swapcache

import (
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Entry points at a finished swap artifact on disk.
type Entry struct {
	ResultPath string
	InsertedAt time.Time
}

// ResultCache remembers finished swaps by fingerprint so repeated requests
// are served from disk instead of calling the worker again. Entries drop
// out after the TTL or when the capacity pushes the least recently used
// one off the end.
type ResultCache struct {
	lru *expirable.LRU[string, Entry]
}

func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		lru: expirable.NewLRU[string, Entry](capacity, nil, ttl),
	}
}

// Get returns the entry for a fingerprint. An entry whose artifact no
// longer exists on disk is evicted and reported as a miss, so a hit always
// points at a readable file.
func (c *ResultCache) Get(fingerprint string) (Entry, bool) {
	entry, ok := c.lru.Get(fingerprint)
	if !ok {
		return Entry{}, false
	}
	if _, err := os.Stat(entry.ResultPath); err != nil {
		c.lru.Remove(fingerprint)
		return Entry{}, false
	}
	return entry, true
}

func (c *ResultCache) Put(fingerprint, resultPath string) {
	c.lru.Add(fingerprint, Entry{ResultPath: resultPath, InsertedAt: time.Now()})
}

func (c *ResultCache) Len() int {
	return c.lru.Len()
}
