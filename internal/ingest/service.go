// Package ingest pulls occupancy readings from an upstream sensor feed and
// writes them through the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"campus-occupancy-backend/config"
	"campus-occupancy-backend/internal/metrics"
	"campus-occupancy-backend/internal/parse"
	"campus-occupancy-backend/internal/store"
)

// Summary counts what one poll cycle did.
type Summary struct {
	Fetched int
	Applied int
	Skipped int
}

// Service polls the feed on an interval.
type Service struct {
	cfg    *config.IngestConfig
	store  store.Store
	client *http.Client

	pool      *WorkerPool
	startOnce sync.Once

	// life bounds the workers; it ends with Close.
	life context.Context
	stop context.CancelFunc
}

// ErrClosed is returned by PollOnce after Close.
var ErrClosed = errors.New("ingest service closed")

// NewService creates and initializes a new ingest service.
func NewService(cfg *config.IngestConfig, s store.Store) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", cfg.HTTPProxy).Msg("Invalid proxy URL; ingest will not use a proxy")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	svc := &Service{
		cfg:   cfg,
		store: s,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
	svc.life, svc.stop = context.WithCancel(context.Background())
	svc.pool = NewWorkerPool(cfg.Workers, svc.apply)
	return svc
}

// Close stops the workers. Cycles in progress are aborted.
func (s *Service) Close() {
	s.stop()
}

// Run polls until ctx is done, then closes the service. It returns
// immediately when ingest is disabled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Info().Msg("Ingest is disabled. Not starting.")
		return
	}
	log.Info().Str("url", s.cfg.URL).Dur("interval", s.cfg.Interval).Msg("Starting ingest service")
	defer s.Close()

	s.poll(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Ingest service shutting down")
			return
		case <-timer.C:
			s.poll(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	summary, err := s.PollOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Ingest cycle aborted; occupancy was not updated")
		return
	}
	log.Info().
		Int("fetched", summary.Fetched).
		Int("applied", summary.Applied).
		Int("skipped", summary.Skipped).
		Msg("Ingest cycle finished")
}

func (s *Service) ensureWorkers() {
	s.startOnce.Do(func() { s.pool.Start(s.life) })
}

// PollOnce fetches the feed once and applies every reading. A failed fetch
// returns an error without touching any occupancy. Bad readings are
// skipped and counted. The cycle ends early when ctx is done or the
// service is closed.
func (s *Service) PollOnce(ctx context.Context) (Summary, error) {
	if s.life.Err() != nil {
		return Summary{}, ErrClosed
	}
	s.ensureWorkers()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAfter := context.AfterFunc(s.life, cancel)
	defer stopAfter()

	feed, err := s.fetch(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Fetched: len(feed.Readings)}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	done := func(outcome string) {
		mu.Lock()
		if outcome == outcomeApplied {
			summary.Applied++
		} else {
			summary.Skipped++
		}
		mu.Unlock()
		wg.Done()
	}

	snapshot := func(err error) (Summary, error) {
		mu.Lock()
		defer mu.Unlock()
		return summary, err
	}

	for _, r := range feed.Readings {
		wg.Add(1)
		if err := s.pool.Dispatch(ctx, r, done); err != nil {
			wg.Done()
			return snapshot(err)
		}
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return snapshot(nil)
	case <-ctx.Done():
		if s.life.Err() != nil {
			return snapshot(ErrClosed)
		}
		return snapshot(ctx.Err())
	}
}

// apply validates a reading, fills in a missing level and upserts it.
func (s *Service) apply(ctx context.Context, r Reading) string {
	outcome := s.applyReading(ctx, r)
	metrics.IngestReadings.WithLabelValues(outcome).Inc()
	if outcome != outcomeApplied {
		log.Warn().Int64("location_id", r.LocationID).Str("outcome", outcome).Msg("Skipping feed reading")
	}
	return outcome
}

func (s *Service) applyReading(ctx context.Context, r Reading) string {
	if r.LocationID <= 0 {
		return outcomeInvalid
	}
	if r.Percentage != nil && (*r.Percentage < 0 || *r.Percentage > 100) {
		return outcomeInvalid
	}

	var patch store.OccupancyPatch
	switch {
	case r.Level != "":
		level, err := parse.ParseLevel(r.Level)
		if err != nil {
			return outcomeInvalid
		}
		patch.Level = &level
	case r.Percentage != nil:
		level := parse.LevelForPercentage(*r.Percentage, s.cfg.Thresholds)
		patch.Level = &level
	default:
		return outcomeInvalid
	}
	patch.Percentage = r.Percentage

	if _, err := s.store.GetLocation(ctx, r.LocationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outcomeUnknownLocation
		}
		log.Error().Err(err).Int64("location_id", r.LocationID).Msg("Failed to look up location")
		return outcomeError
	}

	if _, err := s.store.UpdateOccupancy(ctx, r.LocationID, patch); err != nil {
		if errors.Is(err, store.ErrIncompleteOccupancy) {
			return outcomeRejected
		}
		log.Error().Err(err).Int64("location_id", r.LocationID).Msg("Failed to apply reading")
		return outcomeError
	}
	return outcomeApplied
}

func (s *Service) fetch(ctx context.Context) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var feed Feed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed: %w", err)
	}
	return &feed, nil
}
