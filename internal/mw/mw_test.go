package mw

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestCache_ServesHitsAndInvalidates(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	value := "one"
	calls := 0

	r := gin.New()
	r.GET("/thing", Cache(rc, time.Minute, nil), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"value": value})
	})
	r.POST("/thing", Invalidate(rc, func(c *gin.Context) []string { return []string{"/thing"} }), func(c *gin.Context) {
		value = "two"
		c.Status(http.StatusOK)
	})

	w := do(r, http.MethodGet, "/thing")
	assert.JSONEq(t, `{"value":"one"}`, w.Body.String())

	w = do(r, http.MethodGet, "/thing")
	assert.JSONEq(t, `{"value":"one"}`, w.Body.String())
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, 1, calls)

	do(r, http.MethodPost, "/thing")

	w = do(r, http.MethodGet, "/thing")
	assert.JSONEq(t, `{"value":"two"}`, w.Body.String())
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestCache_SkipsErrorsAndDisabled(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	calls := 0
	handler := func(c *gin.Context) {
		calls++
		c.JSON(http.StatusNotFound, gin.H{"message": "nope"})
	}

	r := gin.New()
	r.GET("/missing", Cache(rc, time.Minute, nil), handler)
	r.GET("/off", Cache(rc, 0, nil), func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})

	do(r, http.MethodGet, "/missing")
	do(r, http.MethodGet, "/missing")
	assert.Equal(t, 2, calls, "404 responses are not cached")

	do(r, http.MethodGet, "/off")
	do(r, http.MethodGet, "/off")
	assert.Equal(t, 4, calls, "a zero duration disables caching")
}

func TestInvalidate_KeepsEntriesOnFailure(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	rc.store.Set("/thing", cachedResponse{status: http.StatusOK}, time.Minute)

	r := gin.New()
	r.POST("/thing", Invalidate(rc, func(c *gin.Context) []string { return []string{"/thing"} }), func(c *gin.Context) {
		c.Status(http.StatusBadRequest)
	})
	do(r, http.MethodPost, "/thing")

	_, found := rc.store.Get("/thing")
	assert.True(t, found)
}

func TestCache_ReadRacingAWriteIsNotStored(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	var value atomic.Value
	value.Store("old")
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32

	r := gin.New()
	r.GET("/thing", Cache(rc, time.Minute, nil), func(c *gin.Context) {
		v := value.Load().(string)
		if calls.Add(1) == 1 {
			entered <- struct{}{}
			<-release
		}
		c.JSON(http.StatusOK, gin.H{"value": v})
	})
	r.POST("/thing", Invalidate(rc, func(c *gin.Context) []string { return []string{"/thing"} }), func(c *gin.Context) {
		value.Store("new")
		c.Status(http.StatusOK)
	})

	slow := make(chan *httptest.ResponseRecorder)
	go func() { slow <- do(r, http.MethodGet, "/thing") }()
	<-entered
	do(r, http.MethodPost, "/thing")
	close(release)
	assert.JSONEq(t, `{"value":"old"}`, (<-slow).Body.String())

	w := do(r, http.MethodGet, "/thing")
	assert.Empty(t, w.Header().Get("X-Cache"), "the racing read was not cached")
	assert.JSONEq(t, `{"value":"new"}`, w.Body.String())
}

func TestCache_KeyFunc(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	calls := 0
	r := gin.New()
	r.GET("/thing", Cache(rc, time.Minute, func(c *gin.Context) string { return c.Request.URL.Path }), func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})

	do(r, http.MethodGet, "/thing?a=1")
	w := do(r, http.MethodGet, "/thing?a=2")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, 1, calls)
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/").Code)
	w := do(r, http.MethodGet, "/")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"message":"Too many requests"}`, w.Body.String())
}

func TestIPRateLimiter_DropsIdleLimiters(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	l.GetLimiter("10.0.0.1")
	l.GetLimiter("10.0.0.2")
	assert.Equal(t, 2, l.Len())
	assert.Same(t, l.GetLimiter("10.0.0.1"), l.GetLimiter("10.0.0.1"))

	now = now.Add(limiterIdleTTL + time.Second)
	l.GetLimiter("10.0.0.3")
	assert.Equal(t, 1, l.Len())
}

func TestMetricsAndLogger(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(), Metrics())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ok").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/nope").Code)
}
