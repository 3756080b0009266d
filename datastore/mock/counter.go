/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package mock

import (
	"context"
	"sync"
)

// Counter is an in-memory numeric id allocator
type Counter struct {
	mu   sync.Mutex
	base int64
	next map[string]int64
	err  error
}

// NewCounter returns a Counter whose first id for every kind is base+1
func NewCounter(base int64) *Counter {
	return &Counter{base: base, next: make(map[string]int64)}
}

// WithError makes NextID fail
func (c *Counter) WithError(err error) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	return c
}

// NextID returns the next id for kind
func (c *Counter) NextID(ctx context.Context, kind string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if _, ok := c.next[kind]; !ok {
		c.next[kind] = c.base
	}
	c.next[kind]++
	return c.next[kind], nil
}
