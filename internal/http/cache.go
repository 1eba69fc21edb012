package http

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/chatlog/internal/store"
)

// projectCache holds the last project overview for ttl.
type projectCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	value   *store.Overview
	expires time.Time
}

func newProjectCache(ttl time.Duration) *projectCache {
	return &projectCache{ttl: ttl, now: time.Now}
}

// get returns the cached overview or calls load. The bool reports a hit.
func (c *projectCache) get(load func() (store.Overview, error)) (store.Overview, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value != nil && c.now().Before(c.expires) {
		return *c.value, true, nil
	}
	ov, err := load()
	if err != nil {
		return store.Overview{}, false, err
	}
	if c.ttl > 0 {
		c.value = &ov
		c.expires = c.now().Add(c.ttl)
	}
	return ov, false, nil
}

func (c *projectCache) invalidate() {
	c.mu.Lock()
	c.value = nil
	c.mu.Unlock()
}
