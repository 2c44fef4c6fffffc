package mw

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"campus-occupancy-backend/internal/metrics"
)

// ResponseCache holds cached GET responses. Every invalidation bumps a
// write generation; a response whose handler ran across a bump is not
// stored, so a read that raced a write cannot re-cache the old value.
type ResponseCache struct {
	store *cache.Cache

	mu  sync.Mutex // orders stores against invalidations
	gen uint64
}

func (rc *ResponseCache) generation() uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.gen
}

// storeIfCurrent caches resp unless an invalidation happened since gen.
func (rc *ResponseCache) storeIfCurrent(gen uint64, key string, resp cachedResponse, d time.Duration) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.gen != gen {
		return false
	}
	rc.store.Set(key, resp, d)
	return true
}

func (rc *ResponseCache) invalidate(keys []string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.gen++
	for _, key := range keys {
		rc.store.Delete(key)
	}
}

// NewResponseCache creates an empty response cache.
func NewResponseCache(defaultTTL time.Duration) *ResponseCache {
	return &ResponseCache{store: cache.New(defaultTTL, 10*time.Minute)}
}

// KeyFunc derives the cache key of a request.
type KeyFunc func(c *gin.Context) string

func requestURI(c *gin.Context) string {
	return c.Request.RequestURI
}

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type bodyCacheWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyCacheWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w bodyCacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache is a middleware for in-memory caching of successful GET responses.
// key derives the cache key, nil means the request URI. A non-positive
// duration disables it.
func Cache(rc *ResponseCache, duration time.Duration, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = requestURI
	}
	return func(c *gin.Context) {
		if duration <= 0 || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		k := key(c)
		if resp, found := rc.store.Get(k); found {
			metrics.ResponseCache.WithLabelValues("hit").Inc()
			cached := resp.(cachedResponse)
			for name, v := range cached.headers {
				c.Writer.Header()[name] = v
			}
			c.Writer.Header().Set("X-Cache", "HIT")
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}
		metrics.ResponseCache.WithLabelValues("miss").Inc()

		gen := rc.generation()
		blw := &bodyCacheWriter{body: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		// Only cache successful responses
		if blw.Status() < 200 || blw.Status() >= 300 {
			return
		}
		response := cachedResponse{
			status: blw.Status(),
			// Make a copy of the header map.
			headers: blw.Header().Clone(),
			body:    blw.body.Bytes(),
		}
		if !rc.storeIfCurrent(gen, k, response, duration) {
			metrics.ResponseCache.WithLabelValues("raced").Inc()
		}
	}
}

// Invalidate drops cached GET responses after a successful mutation. keys
// returns the cache keys the mutation made stale.
func Invalidate(rc *ResponseCache, keys func(c *gin.Context) []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		// Reads still in flight saw the old data and must not be stored.
		stale := keys(c)
		rc.invalidate(stale)
		metrics.ResponseCache.WithLabelValues("invalidated").Add(float64(len(stale)))
	}
}
