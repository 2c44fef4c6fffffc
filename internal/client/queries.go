package client

import (
	"context"
	"strconv"
	"time"

	"campus-occupancy-backend/internal/contract"
	"campus-occupancy-backend/internal/model"
)

// DefaultPollInterval is how often watched occupancy is refetched.
const DefaultPollInterval = 5 * time.Second

// LocationsKey is the cache key of the location list.
func LocationsKey() Key {
	return Key{Path: contract.Routes[contract.ListLocations].Path}
}

// LocationKey is the cache key of a single location.
func LocationKey(id int64) Key {
	return Key{Path: contract.Routes[contract.GetLocation].Path, ID: id}
}

// OccupancyKey is the cache key of a location's occupancy.
func OccupancyKey(locationID int64) Key {
	return Key{Path: contract.Routes[contract.GetOccupancy].Path, ID: locationID}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// OccupancyResult is delivered to occupancy watchers. A nil Occupancy with
// a nil Err means the location has no data yet.
type OccupancyResult struct {
	Occupancy *model.Occupancy
	Err       error
	UpdatedAt time.Time
}

// Queries are the data hooks views use. Reads go through the shared
// QueryCache and writes invalidate what they made stale.
type Queries struct {
	client       *Client
	cache        *QueryCache
	pollInterval time.Duration
}

// Option configures Queries.
type Option func(*Queries)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queries) { q.pollInterval = d }
}

// NewQueries creates hooks backed by client and cache.
func NewQueries(client *Client, cache *QueryCache, opts ...Option) *Queries {
	q := &Queries{
		client:       client,
		cache:        cache,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Locations returns every location.
func (q *Queries) Locations(ctx context.Context) ([]model.Location, error) {
	v, err := q.cache.Fetch(ctx, LocationsKey(), func(ctx context.Context) (any, error) {
		return q.client.ListLocations(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Location), nil
}

// Location returns one location. An id of 0 is the disabled state and
// returns nil without a request.
func (q *Queries) Location(ctx context.Context, id int64) (*model.Location, error) {
	if id == 0 {
		return nil, nil
	}
	v, err := q.cache.Fetch(ctx, LocationKey(id), func(ctx context.Context) (any, error) {
		return q.client.GetLocation(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Location), nil
}

// Occupancy returns a location's occupancy once, nil when it has no data.
func (q *Queries) Occupancy(ctx context.Context, locationID int64) (*model.Occupancy, error) {
	if locationID == 0 {
		return nil, nil
	}
	v, err := q.cache.Fetch(ctx, OccupancyKey(locationID), q.occupancyFetch(locationID))
	if err != nil {
		return nil, err
	}
	occ, _ := v.(*model.Occupancy)
	return occ, nil
}

// WatchOccupancy polls a location's occupancy and reports every result
// until stop is called. An id of 0 is the disabled state: nothing is
// fetched and onResult is never called.
func (q *Queries) WatchOccupancy(locationID int64, onResult func(OccupancyResult)) (stop func()) {
	if locationID == 0 {
		return func() {}
	}
	return q.cache.Subscribe(OccupancyKey(locationID), q.pollInterval, q.occupancyFetch(locationID), func(r Result) {
		occ, _ := r.Data.(*model.Occupancy)
		onResult(OccupancyResult{Occupancy: occ, Err: r.Err, UpdatedAt: r.UpdatedAt})
	})
}

// CreateLocation creates a location and invalidates the list.
func (q *Queries) CreateLocation(ctx context.Context, in contract.LocationInsert) (*model.Location, error) {
	loc, err := q.client.CreateLocation(ctx, in)
	if err != nil {
		return nil, err
	}
	q.cache.Invalidate(LocationsKey())
	return loc, nil
}

// UpdateOccupancy writes a location's occupancy, then invalidates that
// location's occupancy and the location list so watchers refetch.
func (q *Queries) UpdateOccupancy(ctx context.Context, locationID int64, update contract.OccupancyUpdate) (*model.Occupancy, error) {
	rec, err := q.client.UpdateOccupancy(ctx, locationID, update)
	if err != nil {
		return nil, err
	}
	q.cache.Invalidate(OccupancyKey(locationID))
	q.cache.InvalidatePath(LocationsKey().Path)
	return rec, nil
}

func (q *Queries) occupancyFetch(locationID int64) FetchFunc {
	return func(ctx context.Context) (any, error) {
		return q.client.GetOccupancy(ctx, locationID)
	}
}
