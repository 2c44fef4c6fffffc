package store

import (
	"errors"

	"campus-occupancy-backend/internal/model"
)

var (
	// ErrNotFound is returned when a location or occupancy record is absent.
	ErrNotFound = errors.New("record not found")

	// ErrIncompleteOccupancy is returned when the first occupancy record of a
	// location would be created without both a level and a percentage.
	ErrIncompleteOccupancy = errors.New("cannot create occupancy without level and percentage")
)

// OccupancyPatch carries the fields to write; nil fields are left unchanged.
type OccupancyPatch struct {
	Level      *string
	Percentage *int
}

// Complete reports whether the patch can create a record on its own.
func (p OccupancyPatch) Complete() bool {
	return p.Level != nil && *p.Level != "" && p.Percentage != nil
}

func (p OccupancyPatch) applyTo(rec *model.Occupancy) {
	if p.Level != nil {
		rec.Level = *p.Level
	}
	if p.Percentage != nil {
		rec.Percentage = *p.Percentage
	}
}
