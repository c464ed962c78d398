// Package cache stores engine-generated schema narratives so repeated
// sessions against an unchanged store can skip the describe call.
package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// NarrativeCache provides a simple thread-safe in-memory cache of
// schema narratives keyed by store fingerprint.
type NarrativeCache struct {
	store map[string]narrativeItem
	mutex sync.RWMutex
	ttl   time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

type narrativeItem struct {
	narrative  string
	expiration int64
}

// NewNarrativeCache creates a new in-memory narrative cache with a default TTL.
func NewNarrativeCache(defaultTTL time.Duration) *NarrativeCache {
	c := &NarrativeCache{
		store: make(map[string]narrativeItem),
		ttl:   defaultTTL,
		done:  make(chan struct{}),
	}
	// Start a background cleanup goroutine
	go c.cleanupLoop(10 * time.Minute)
	return c
}

// Close stops the background cleanup goroutine. Safe to call more than
// once; the cache itself stays usable.
func (c *NarrativeCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Get retrieves a narrative from the cache.
func (c *NarrativeCache) Get(ctx context.Context, key string) (string, error) {
	// Check context cancellation first
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return "", err
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, found := c.store[key]
	if !found {
		return "", errbuilder.NotFoundErr(errbuilder.GenericErr("narrative not found", nil))
	}

	if time.Now().UnixNano() > item.expiration {
		// Item expired (lazy cleanup)
		log.Printf("Cached narrative expired: %s", key)
		return "", errbuilder.NotFoundErr(errbuilder.GenericErr("narrative expired", nil))
	}

	return item.narrative, nil
}

// Set adds or updates a narrative in the cache.
func (c *NarrativeCache) Set(ctx context.Context, key string, narrative string) error {
	// Check context cancellation first
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.store[key] = narrativeItem{
		narrative:  narrative,
		expiration: time.Now().Add(c.ttl).UnixNano(),
	}
	return nil
}

// cleanupLoop periodically removes expired items until Close.
func (c *NarrativeCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now().UnixNano()
			for key, item := range c.store {
				if now > item.expiration {
					delete(c.store, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}
