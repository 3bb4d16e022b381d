// SPDX-License-Identifier: GPL-3.0-or-later

// Package ttlcache implements a size-bounded map whose entries expire after a
// fixed time-to-live. Expired entries are removed lazily on read; when the
// cache is full the oldest inserted entry is evicted.
//
// A Cache is not safe for concurrent use.
package ttlcache

import (
	"container/list"
	"time"
)

type entry[K comparable, V any] struct {
	key      K
	value    V
	expireAt time.Time
}

type Cache[K comparable, V any] struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	items map[K]*list.Element
	order *list.List // front is the oldest insertion
}

// New panics if maxSize is not positive.
func New[K comparable, V any](maxSize int, ttl time.Duration) *Cache[K, V] {
	if maxSize <= 0 {
		panic("ttlcache: maxSize must be positive")
	}
	return &Cache[K, V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[K]*list.Element),
		order:   list.New(),
	}
}

// WithClock replaces the time source, used in tests.
func (c *Cache[K, V]) WithClock(now func() time.Time) *Cache[K, V] {
	c.now = now
	return c
}

func (c *Cache[K, V]) TTL() time.Duration { return c.ttl }

func (c *Cache[K, V]) MaxSize() int { return c.maxSize }

// Len reports the number of stored entries, including expired ones not
// read or swept yet.
func (c *Cache[K, V]) Len() int { return len(c.items) }

func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}

	e := el.Value.(*entry[K, V])
	if !c.now().Before(e.expireAt) {
		c.remove(el)
		return zero, false
	}
	return e.value, true
}

// Contains is Get without the value.
func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Put stores the value and restarts its TTL. Re-inserting an existing key
// counts as a fresh insertion for eviction order.
func (c *Cache[K, V]) Put(key K, value V) {
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}

	for len(c.items) >= c.maxSize {
		c.remove(c.order.Front())
	}

	e := &entry[K, V]{key: key, value: value, expireAt: c.now().Add(c.ttl)}
	c.items[key] = c.order.PushBack(e)
}

// Sweep drops every expired entry and returns how many were dropped.
// With one TTL for all entries insertion order is expiry order, so the
// sweep stops at the first live entry.
func (c *Cache[K, V]) Sweep() int {
	now := c.now()
	var n int
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if now.Before(el.Value.(*entry[K, V]).expireAt) {
			break
		}
		c.remove(el)
		n++
	}
	return n
}

func (c *Cache[K, V]) Delete(key K) {
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
}

func (c *Cache[K, V]) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
}
