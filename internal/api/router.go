package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"campus-occupancy-backend/internal/contract"
	"campus-occupancy-backend/internal/mw"
	"campus-occupancy-backend/internal/store"
)

// Options tunes the router middleware.
type Options struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	// CacheTTL is how long successful GET responses are served from memory.
	// Zero disables the response cache.
	CacheTTL time.Duration
}

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(), mw.Metrics())

	handler := NewHandler(s)

	rateLimiter := mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst)
	responses := mw.NewResponseCache(opts.CacheTTL)
	caching := mw.Cache(responses, opts.CacheTTL, cacheKey)

	listPath := contract.Routes[contract.ListLocations].Path
	invalidateList := mw.Invalidate(responses, func(c *gin.Context) []string {
		return []string{listPath}
	})
	invalidateOccupancy := mw.Invalidate(responses, func(c *gin.Context) []string {
		return []string{canonicalPath(contract.Routes[contract.GetOccupancy].Path, c.Param("id")), listPath}
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("", rateLimiter)
	handle := func(op contract.Operation, handlers ...gin.HandlerFunc) {
		route := contract.Routes[op]
		api.Handle(route.Method, route.Path, handlers...)
	}

	handle(contract.ListLocations, caching, handler.ListLocations)
	handle(contract.GetLocation, caching, handler.GetLocation)
	handle(contract.CreateLocation, invalidateList, handler.CreateLocation)
	handle(contract.GetOccupancy, caching, handler.GetOccupancy)
	handle(contract.UpdateOccupancy, invalidateOccupancy, handler.UpdateOccupancy)

	return r
}

// cacheKey keys GET responses by route and parsed id, so ids 042 and 42
// share an entry. The query string is ignored.
func cacheKey(c *gin.Context) string {
	if c.FullPath() == "" {
		return c.Request.URL.Path
	}
	return canonicalPath(c.FullPath(), c.Param("id"))
}

func canonicalPath(route, rawID string) string {
	if rawID == "" {
		return route
	}
	if id, err := strconv.ParseInt(rawID, 10, 64); err == nil {
		rawID = strconv.FormatInt(id, 10)
	}
	return contract.BuildURL(route, map[string]string{"id": rawID})
}
