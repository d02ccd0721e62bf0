package metrics

import (
	"net/http"
	"strings"
	"sync"
)

// UnmatchedPath is the uri label for requests no prefix claims.
const UnmatchedPath = "unmatched"

var (
	skipMu    sync.RWMutex
	skipPaths = map[string]struct{}{"/metrics": {}, "/ping": {}}

	normMu         sync.RWMutex
	pathNormalizer = func(r *http.Request) string { return r.URL.Path }
)

// AddMetricsSkipPaths extends the skip list ("/metrics" and "/ping" by default).
func AddMetricsSkipPaths(paths ...string) {
	skipMu.Lock()
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p != "" {
			skipPaths[p] = struct{}{}
		}
	}
	skipMu.Unlock()
}

// SetPathNormalizer replaces the function that derives the uri label.
func SetPathNormalizer(fn func(*http.Request) string) {
	if fn == nil {
		return
	}
	normMu.Lock()
	pathNormalizer = fn
	normMu.Unlock()
}

// ByPrefix labels a request with the path prefix lookup reports for it,
// or UnmatchedPath. Proxied paths are unbounded; prefixes are not.
func ByPrefix(lookup func(path string) (prefix string, ok bool)) func(*http.Request) string {
	return func(r *http.Request) string {
		if p, ok := lookup(r.URL.Path); ok {
			return p
		}
		return UnmatchedPath
	}
}

func isSkipPath(r *http.Request) bool {
	p := r.URL.Path
	skipMu.RLock()
	_, ok := skipPaths[p]
	skipMu.RUnlock()
	return ok
}

func normalizePath(r *http.Request) string {
	normMu.RLock()
	fn := pathNormalizer
	normMu.RUnlock()
	return fn(r)
}
