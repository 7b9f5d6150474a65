// Package proxy assigns egress proxies to outgoing requests.
package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ErrBoundaryExceedsPool is returned when the wraparound bound would index
// past the end of the pool.
var ErrBoundaryExceedsPool = errors.New("proxy: boundary exceeds pool size")

// Rotator cycles through a fixed pool. The Nth call to Next returns
// pool[N mod boundary].
type Rotator struct {
	mu       sync.Mutex
	pool     []string
	boundary int
	cursor   int
}

// NewRotator builds a rotator over pool. A boundary of zero wraps at the pool
// size; a smaller boundary restricts rotation to the first boundary entries.
func NewRotator(pool []string, boundary int) (*Rotator, error) {
	if boundary < 0 {
		return nil, fmt.Errorf("proxy: negative boundary %d", boundary)
	}
	if boundary > len(pool) {
		return nil, fmt.Errorf("%w: boundary %d, pool %d", ErrBoundaryExceedsPool, boundary, len(pool))
	}
	if boundary == 0 {
		boundary = len(pool)
	}
	p := make([]string, len(pool))
	copy(p, pool)
	return &Rotator{pool: p, boundary: boundary}, nil
}

// Next returns the proxy for the next request and advances the cursor.
// An empty pool yields "", meaning a direct connection.
func (r *Rotator) Next() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.boundary == 0 {
		return ""
	}
	addr := r.pool[r.cursor]
	r.cursor++
	if r.cursor >= r.boundary {
		r.cursor = 0
	}
	return addr
}

// Boundary returns the wraparound bound in effect.
func (r *Rotator) Boundary() int {
	if r == nil {
		return 0
	}
	return r.boundary
}

// Size returns the number of proxies in the pool.
func (r *Rotator) Size() int {
	if r == nil {
		return 0
	}
	return len(r.pool)
}

// URL turns a pool entry into a proxy URL. Bare host:port entries (and
// user:pass@host:port) are treated as HTTP proxies.
func URL(addr string) (*url.URL, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("proxy: empty address")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("proxy: parse %q: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy: %q has no host", addr)
	}
	return u, nil
}
