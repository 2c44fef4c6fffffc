package model

import (
	"time"
)

// Occupancy levels, a coarse crowding indicator paired with a percentage.
const (
	LevelLow      = "low"
	LevelModerate = "moderate"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// Levels lists the recognised levels from least to most crowded.
var Levels = []string{LevelLow, LevelModerate, LevelHigh, LevelCritical}

// Occupancy is the current crowding reading of a location. A location has
// at most one row, enforced by the unique index on LocationID.
type Occupancy struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	LocationID int64     `gorm:"uniqueIndex;not null" json:"locationId" validate:"required"`
	Level      string    `gorm:"size:32;not null" json:"level" validate:"required"`
	Percentage int       `gorm:"not null" json:"percentage"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false;not null" json:"updatedAt" validate:"required"`
}

// TableName keeps the singular table name used by existing deployments.
func (Occupancy) TableName() string {
	return "occupancy"
}
