package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"supportchat/backend/internal/models"
)

// Collection is the in-memory cache of one stored collection. All mutations go
// through Update, which holds the collection lock for the whole
// read-modify-save sequence and publishes the new state only once it is saved.
//
// The cache remembers the backend version it mirrors. Update re-reads the
// collection first when that version moved, so writes made by another process
// on the same store (the admin CLI) are not overwritten.
type Collection[T any] struct {
	name    string
	backend Backend

	mu      sync.RWMutex
	items   []T
	version string
}

// NewCollection returns an empty, not yet loaded collection.
func NewCollection[T any](name string, b Backend) *Collection[T] {
	return &Collection[T]{name: name, backend: b}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Load replaces the cache with the stored version. An undecodable document is
// quarantined and the collection starts empty; read errors are returned and
// leave the cache untouched.
func (c *Collection[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *Collection[T]) load(ctx context.Context) error {
	version, err := c.backend.Version(ctx, c.name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("storage: stat %s: %w", c.name, err)
	}
	data, err := c.backend.Load(ctx, c.name)
	if errors.Is(err, ErrNotFound) {
		c.items, c.version = nil, ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", c.name, err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		log.Printf("WARNING: [storage] collection %s is corrupt, quarantining: %v", c.name, err)
		if qerr := c.backend.Quarantine(ctx, c.name); qerr != nil {
			return fmt.Errorf("storage: quarantine %s: %w", c.name, qerr)
		}
		c.items, c.version = nil, ""
		return nil
	}
	c.items, c.version = items, version
	return nil
}

// refresh reloads the cache when the stored version is not the one it mirrors.
func (c *Collection[T]) refresh(ctx context.Context) error {
	version, err := c.backend.Version(ctx, c.name)
	if errors.Is(err, ErrNotFound) {
		version, err = "", nil
	}
	if err != nil {
		return fmt.Errorf("storage: stat %s: %w", c.name, err)
	}
	if version == c.version {
		return nil
	}
	log.Printf("INFO: [storage] collection %s changed in the backend, reloading", c.name)
	return c.load(ctx)
}

// Snapshot returns a copy of the current records in stored order.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

// Find returns the first record matching pred.
func (c *Collection[T]) Find(pred func(T) bool) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if pred(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Update runs fn on a copy of the records and saves the result. If fn fails
// nothing is written. If the save fails the error wraps models.ErrPersistence
// and the cache keeps the last saved state.
//
// fn must not retain the slice or mutate nested slices of existing records in
// place; append to a clipped copy instead.
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		log.Printf("ERROR: [storage] %v", err)
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	next, err := fn(slices.Clone(c.items))
	if err != nil {
		return err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", models.ErrPersistence, c.name, err)
	}
	if err := c.backend.Save(ctx, c.name, data); err != nil {
		log.Printf("ERROR: [storage] save %s failed: %v", c.name, err)
		return fmt.Errorf("%w: save %s: %v", models.ErrPersistence, c.name, err)
	}

	c.items = next
	version, err := c.backend.Version(ctx, c.name)
	if err != nil {
		// Unknown version: the next Update reloads what was just saved.
		log.Printf("WARNING: [storage] stat %s after save: %v", c.name, err)
		version = ""
	}
	c.version = version
	return nil
}
