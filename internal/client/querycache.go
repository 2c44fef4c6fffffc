package client

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"campus-occupancy-backend/internal/contract"
)

// Key identifies a cached query: the route template it reads and the
// location id it is scoped to, if any.
type Key struct {
	Path string
	ID   int64
}

// String returns the concrete request path for the key.
func (k Key) String() string {
	if k.ID == 0 {
		return k.Path
	}
	return contract.BuildURL(k.Path, map[string]string{"id": formatID(k.ID)})
}

// FetchFunc loads the value for a key.
type FetchFunc func(ctx context.Context) (any, error)

// Result is what subscribers see. Data holds the last successful value and
// survives later failures, which are reported in Err.
type Result struct {
	Data      any
	Err       error
	UpdatedAt time.Time
}

type entry struct {
	result    Result
	hasResult bool
	stale     bool

	// gen is bumped by every invalidation. resultGen is the gen the stored
	// result was fetched under; older results are dropped.
	gen       uint64
	resultGen uint64

	fetch FetchFunc
	subs  map[uint64]func(Result)

	// poll loop, nil when nobody is subscribed
	stop context.CancelFunc
	kick chan struct{}
}

// QueryCache deduplicates reads across views. Concurrent fetches of one key
// share a single request, subscribers of one key share a single poll
// loop, and invalidating a key refetches it for every subscriber.
type QueryCache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	group   singleflight.Group
	nextSub uint64
	now     func() time.Time
}

// NewQueryCache returns an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{
		entries: make(map[Key]*entry),
		now:     time.Now,
	}
}

func (c *QueryCache) entry(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{subs: make(map[uint64]func(Result))}
		c.entries[key] = e
	}
	return e
}

// Peek returns the cached result for key without fetching.
func (c *QueryCache) Peek(key Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.hasResult {
		return Result{}, false
	}
	return e.result, true
}

// Fetch returns the cached value for key, loading it with fn when the key
// has no fresh value.
func (c *QueryCache) Fetch(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	c.mu.Lock()
	e := c.entry(key)
	if e.hasResult && !e.stale && e.result.Err == nil {
		data := e.result.Data
		c.mu.Unlock()
		return data, nil
	}
	if e.fetch == nil {
		e.fetch = fn
	}
	c.mu.Unlock()

	return c.load(ctx, key, fn)
}

func (c *QueryCache) load(ctx context.Context, key Key, fn FetchFunc) (any, error) {
	c.mu.Lock()
	gen := c.entry(key).gen
	c.mu.Unlock()

	// Flights are per generation so a read started after an invalidation
	// never joins one started before it.
	flight := key.String() + "@" + strconv.FormatUint(gen, 10)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		return fn(ctx)
	})

	c.mu.Lock()
	e := c.entry(key)
	if e.hasResult && gen < e.resultGen {
		c.mu.Unlock()
		return v, err
	}
	e.resultGen = gen
	if err == nil {
		e.result = Result{Data: v, UpdatedAt: c.now()}
		e.stale = gen != e.gen
	} else {
		e.result.Err = err
	}
	e.hasResult = true
	result := e.result
	subs := make([]func(Result), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, notify := range subs {
		notify(result)
	}
	return v, err
}

// Subscribe calls onResult with every new result for key until the returned
// function is called. The first subscriber starts a poll loop that fetches
// immediately and then every interval; later subscribers join it and get
// the cached result straight away. The loop stops with the last
// subscriber. A non-positive interval only refetches on invalidation.
func (c *QueryCache) Subscribe(key Key, interval time.Duration, fn FetchFunc, onResult func(Result)) (unsubscribe func()) {
	c.mu.Lock()
	e := c.entry(key)
	c.nextSub++
	id := c.nextSub
	e.subs[id] = onResult
	e.fetch = fn

	var cached *Result
	if e.hasResult {
		r := e.result
		cached = &r
	}
	if e.stop == nil {
		ctx, stop := context.WithCancel(context.Background())
		kick := make(chan struct{}, 1)
		e.stop = stop
		e.kick = kick
		go c.poll(ctx, key, interval, kick)
	}
	c.mu.Unlock()

	if cached != nil {
		onResult(*cached)
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(key, id) })
	}
}

func (c *QueryCache) unsubscribe(key Key, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(e.subs, id)
	if len(e.subs) == 0 && e.stop != nil {
		e.stop()
		e.stop = nil
		e.kick = nil
	}
}

func (c *QueryCache) poll(ctx context.Context, key Key, interval time.Duration, kick <-chan struct{}) {
	c.refresh(ctx, key)

	// A nil tick channel blocks forever, leaving only kicks.
	var tick <-chan time.Time
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			c.refresh(ctx, key)
		case <-kick:
			c.refresh(ctx, key)
			if ticker != nil {
				ticker.Reset(interval)
			}
		}
	}
}

// refresh fetches key for the poll loop. An in-flight request outlives an
// unsubscribe; only further polls stop.
func (c *QueryCache) refresh(ctx context.Context, key Key) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	fn := c.entry(key).fetch
	c.mu.Unlock()
	if fn == nil {
		return
	}
	if _, err := c.load(context.Background(), key, fn); err != nil {
		log.Debug().Err(err).Str("key", key.String()).Msg("Poll fetch failed")
	}
}

// Invalidate marks key stale. Subscribed keys refetch right away; others
// refetch on their next Fetch.
func (c *QueryCache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.invalidate(e)
	}
}

// InvalidatePath marks every key under a route template stale.
func (c *QueryCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if key.Path == path {
			c.invalidate(e)
		}
	}
}

func (c *QueryCache) invalidate(e *entry) {
	e.gen++
	e.stale = true
	if e.kick == nil {
		return
	}
	select {
	case e.kick <- struct{}{}:
	default:
	}
}
