package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-occupancy-backend/internal/contract"
	"campus-occupancy-backend/internal/metrics"
	"campus-occupancy-backend/internal/model"
)

// Store defines the interface for all location and occupancy operations.
type Store interface {
	ListLocations(ctx context.Context) ([]model.Location, error)
	GetLocation(ctx context.Context, id int64) (*model.Location, error)
	CreateLocation(ctx context.Context, in contract.LocationInsert) (*model.Location, error)

	GetOccupancy(ctx context.Context, locationID int64) (*model.Occupancy, error)
	UpdateOccupancy(ctx context.Context, locationID int64, patch OccupancyPatch) (*model.Occupancy, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *gormStore) ListLocations(ctx context.Context) ([]model.Location, error) {
	locations := make([]model.Location, 0)
	if err := s.db.WithContext(ctx).Order("id").Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

func (s *gormStore) GetLocation(ctx context.Context, id int64) (*model.Location, error) {
	var loc model.Location
	if err := s.db.WithContext(ctx).First(&loc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get location %d: %w", id, err)
	}
	return &loc, nil
}

func (s *gormStore) CreateLocation(ctx context.Context, in contract.LocationInsert) (*model.Location, error) {
	if err := contract.Validate(in); err != nil {
		return nil, err
	}
	loc := in.Location()
	if err := s.db.WithContext(ctx).Create(&loc).Error; err != nil {
		return nil, fmt.Errorf("failed to create location: %w", err)
	}
	return &loc, nil
}

func (s *gormStore) GetOccupancy(ctx context.Context, locationID int64) (*model.Occupancy, error) {
	rec, err := firstOccupancy(s.db.WithContext(ctx), locationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get occupancy for location %d: %w", locationID, err)
	}
	return rec, nil
}

// UpdateOccupancy merges patch onto the location's record, creating the
// record when absent. The insert is an ON CONFLICT upsert on location_id so
// two first writers racing each other still leave a single row.
func (s *gormStore) UpdateOccupancy(ctx context.Context, locationID int64, patch OccupancyPatch) (*model.Occupancy, error) {
	now := s.now()
	var result *model.Occupancy
	outcome := "updated"

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := firstOccupancy(tx, locationID)
		switch {
		case err == nil:
			patch.applyTo(existing)
			existing.UpdatedAt = now
			if err := tx.Save(existing).Error; err != nil {
				return fmt.Errorf("failed to update occupancy for location %d: %w", locationID, err)
			}
			result = existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to fetch occupancy for location %d: %w", locationID, err)
		}

		if !patch.Complete() {
			return ErrIncompleteOccupancy
		}
		record := model.Occupancy{
			LocationID: locationID,
			Level:      *patch.Level,
			Percentage: *patch.Percentage,
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "location_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"level", "percentage", "updated_at"}),
		}).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to create occupancy for location %d: %w", locationID, err)
		}
		// Re-read so the id is the stored one when the conflict branch fired.
		created, err := firstOccupancy(tx, locationID)
		if err != nil {
			return fmt.Errorf("failed to read back occupancy for location %d: %w", locationID, err)
		}
		result = created
		outcome = "created"
		return nil
	})

	switch {
	case errors.Is(err, ErrIncompleteOccupancy):
		metrics.OccupancyUpdates.WithLabelValues("rejected").Inc()
		return nil, err
	case err != nil:
		metrics.OccupancyUpdates.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.OccupancyUpdates.WithLabelValues(outcome).Inc()
	log.Debug().
		Int64("location_id", locationID).
		Str("level", result.Level).
		Int("percentage", result.Percentage).
		Str("outcome", outcome).
		Msg("occupancy written")
	return result, nil
}

// firstOccupancy fetches the single record kept per location.
func firstOccupancy(db *gorm.DB, locationID int64) (*model.Occupancy, error) {
	var rec model.Occupancy
	if err := db.Where("location_id = ?", locationID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}
