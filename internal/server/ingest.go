package server

import (
	"net/http"
	"strings"
	"sync"
)

const ingestPrefix = "/ingest"

// IngestDispatcher routes /ingest/<path> to the handlers of mounted HTTP inputs.
type IngestDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]http.Handler
}

// NewIngestDispatcher returns a new IngestDispatcher.
func NewIngestDispatcher() *IngestDispatcher {
	return &IngestDispatcher{
		handlers: make(map[string]http.Handler),
	}
}

// Mount registers a handler for path. Both "/ingest/client" and "client"
// mount at /ingest/client.
func (d *IngestDispatcher) Mount(path string, h http.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[normalizePath(path)] = h
}

// Paths returns the mounted paths, without the /ingest prefix.
func (d *IngestDispatcher) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for p := range d.handlers {
		out = append(out, p)
	}
	return out
}

// ServeHTTP strips the /ingest prefix and dispatches to the registered handler.
func (d *IngestDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	h, ok := d.handlers[normalizePath(r.URL.Path)]
	d.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

func normalizePath(path string) string {
	path = strings.TrimPrefix(path, ingestPrefix)
	path = strings.TrimSuffix(path, "/")
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return path
}
