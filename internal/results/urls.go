package results

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// URLPrefix starts every object URL.
const URLPrefix = "blob:"

type blob struct {
	data        []byte
	contentType string
}

// URLRegistry maps object URLs to the bytes they expose. A URL stays
// valid until revoked.
type URLRegistry struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewURLRegistry returns an empty registry.
func NewURLRegistry() *URLRegistry {
	return &URLRegistry{blobs: make(map[string]blob)}
}

// Create registers data and returns its new URL.
func (r *URLRegistry) Create(data []byte, contentType string) string {
	url := URLPrefix + uuid.NewString()
	r.mu.Lock()
	r.blobs[url] = blob{data: data, contentType: contentType}
	r.mu.Unlock()
	return url
}

// Get returns the bytes and content type behind url.
func (r *URLRegistry) Get(url string) ([]byte, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[url]
	return b.data, b.contentType, ok
}

// Revoke invalidates url. It reports whether the URL was live.
func (r *URLRegistry) Revoke(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[url]; !ok {
		return false
	}
	delete(r.blobs, url)
	return true
}

// RevokeAll invalidates every URL and returns how many were live.
func (r *URLRegistry) RevokeAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.blobs)
	clear(r.blobs)
	return n
}

// Len returns the number of live URLs.
func (r *URLRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// Token returns the part of url after the prefix, as used in /blob/{token}.
func Token(url string) string {
	return strings.TrimPrefix(url, URLPrefix)
}

// URLFromToken is the inverse of Token.
func URLFromToken(token string) string {
	return URLPrefix + token
}
