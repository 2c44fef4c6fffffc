package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-occupancy-backend/internal/contract"
	"campus-occupancy-backend/internal/metrics"
	"campus-occupancy-backend/internal/model"
)

// memoryStore keeps everything in process memory. The upsert holds the
// write lock across its read-merge-write, so it is serialised per process.
type memoryStore struct {
	mu        sync.RWMutex
	locations map[int64]model.Location
	occupancy map[int64]model.Occupancy // keyed by location id
	nextLocID int64
	nextOccID int64
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{
		locations: make(map[int64]model.Location),
		occupancy: make(map[int64]model.Occupancy),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locations := make([]model.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		locations = append(locations, cloneLocation(loc))
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].ID < locations[j].ID })
	return locations, nil
}

func (s *memoryStore) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok {
		return nil, ErrNotFound
	}
	loc = cloneLocation(loc)
	return &loc, nil
}

func (s *memoryStore) CreateLocation(ctx context.Context, in contract.LocationInsert) (*model.Location, error) {
	if err := contract.Validate(in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLocID++
	loc := in.Location()
	loc.ID = s.nextLocID
	s.locations[loc.ID] = cloneLocation(loc)
	return &loc, nil
}

func (s *memoryStore) GetOccupancy(ctx context.Context, locationID int64) (*model.Occupancy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.occupancy[locationID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *memoryStore) UpdateOccupancy(ctx context.Context, locationID int64, patch OccupancyPatch) (*model.Occupancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.occupancy[locationID]
	outcome := "updated"
	if !exists {
		if !patch.Complete() {
			metrics.OccupancyUpdates.WithLabelValues("rejected").Inc()
			return nil, ErrIncompleteOccupancy
		}
		s.nextOccID++
		rec = model.Occupancy{ID: s.nextOccID, LocationID: locationID}
		outcome = "created"
	}
	patch.applyTo(&rec)
	rec.UpdatedAt = s.now()
	s.occupancy[locationID] = rec

	metrics.OccupancyUpdates.WithLabelValues(outcome).Inc()
	return &rec, nil
}

func cloneLocation(loc model.Location) model.Location {
	if loc.Description != nil {
		d := *loc.Description
		loc.Description = &d
	}
	if loc.Floor != nil {
		f := *loc.Floor
		loc.Floor = &f
	}
	return loc
}
