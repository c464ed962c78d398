package cache

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// FileCache is a file-backed narrative cache: narratives survive process
// restarts, so a fresh run against an unchanged store still skips the
// describe call.
type FileCache struct {
	store    map[string]persistedItem
	mutex    sync.RWMutex
	ttl      time.Duration
	filePath string
	logger   Logger

	done      chan struct{}
	closeOnce sync.Once
}

// persistedItem has exported fields so the JSON round trip keeps them.
type persistedItem struct {
	Narrative  string `json:"narrative"`
	Expiration int64  `json:"expiration"`
}

// NewFileCache creates a persistent narrative cache with a default TTL
// and backing file path.
func NewFileCache(defaultTTL time.Duration, filePath string, logger Logger) *FileCache {
	c := &FileCache{
		store:    make(map[string]persistedItem),
		ttl:      defaultTTL,
		filePath: filePath,
		logger:   logger,
		done:     make(chan struct{}),
	}
	c.loadFromFile()
	go c.cleanupLoop(10 * time.Minute)
	return c
}

// Close stops the background cleanup goroutine. Safe to call more than
// once; the cache itself stays usable.
func (c *FileCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// loadFromFile loads cache items from the backing file.
func (c *FileCache) loadFromFile() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	file, err := os.Open(c.filePath)
	if err != nil {
		return
	}
	defer file.Close()
	_ = json.NewDecoder(file).Decode(&c.store)
}

// saveToFileLocked writes the store to the backing file. Callers must
// hold the mutex.
func (c *FileCache) saveToFileLocked() {
	file, err := os.Create(c.filePath)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("Failed to persist narrative cache", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	defer file.Close()
	_ = json.NewEncoder(file).Encode(c.store)
}

// Get retrieves a narrative from the cache.
func (c *FileCache) Get(ctx context.Context, key string) (string, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return "", err
	}

	c.mutex.RLock()
	item, found := c.store[key]
	c.mutex.RUnlock()

	if !found {
		return "", errbuilder.NotFoundErr(errbuilder.GenericErr("narrative not found", nil))
	}
	if time.Now().UnixNano() > item.Expiration {
		if c.logger != nil {
			c.logger.Info("Persisted narrative expired", map[string]interface{}{"key": key})
		}
		return "", errbuilder.NotFoundErr(errbuilder.GenericErr("narrative expired", nil))
	}
	return item.Narrative, nil
}

// Set adds or updates a narrative and persists the store.
func (c *FileCache) Set(ctx context.Context, key string, narrative string) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	c.store[key] = persistedItem{
		Narrative:  narrative,
		Expiration: time.Now().Add(c.ttl).UnixNano(),
	}
	c.saveToFileLocked()
	c.mutex.Unlock()
	return nil
}

// cleanupLoop periodically removes expired items and saves the file
// until Close.
func (c *FileCache) cleanupLoop(interval time.Duration) {
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
				if now > item.Expiration {
					delete(c.store, key)
				}
			}
			c.saveToFileLocked()
			c.mutex.Unlock()
		}
	}
}
