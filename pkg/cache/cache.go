package cache

import (
	lru "github.com/hashicorp/golang-lru"

	"emperror.dev/errors"
)

// Cache holds deserialized inventories keyed by object id. Implementations
// must be safe for concurrent use.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Put(key string, value T)
	Invalidate(key string)
}

type NoOpCache[T any] struct{}

func NewNoOpCache[T any]() *NoOpCache[T] {
	return &NoOpCache[T]{}
}

func (c *NoOpCache[T]) Get(_ string) (T, bool) {
	var zero T
	return zero, false
}

func (c *NoOpCache[T]) Put(_ string, _ T) {}

func (c *NoOpCache[T]) Invalidate(_ string) {}

// LRUCache evicts least recently used entries beyond a fixed size.
type LRUCache[T any] struct {
	c *lru.Cache
}

func NewLRUCache[T any](size int) (*LRUCache[T], error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot create lru cache of size %d", size)
	}
	return &LRUCache[T]{c: c}, nil
}

func (c *LRUCache[T]) Get(key string) (T, bool) {
	var zero T
	got, ok := c.c.Get(key)
	if !ok {
		return zero, false
	}
	value, ok := got.(T)
	if !ok {
		return zero, false
	}
	return value, true
}

func (c *LRUCache[T]) Put(key string, value T) {
	c.c.Add(key, value)
}

func (c *LRUCache[T]) Invalidate(key string) {
	c.c.Remove(key)
}

var (
	_ Cache[int] = &NoOpCache[int]{}
	_ Cache[int] = &LRUCache[int]{}
)
