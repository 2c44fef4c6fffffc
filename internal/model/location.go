package model

// Location is a place on campus whose crowding is tracked: a room, a
// building or an amenity.
type Location struct {
	ID          int64   `gorm:"primaryKey" json:"id"`
	Name        string  `gorm:"not null" json:"name" validate:"required"`
	Description *string `json:"description"`
	Type        string  `gorm:"not null" json:"type" validate:"required"` // e.g. library, cafeteria, classroom
	Lat         float64 `gorm:"not null" json:"lat" validate:"latitude"`
	Lng         float64 `gorm:"not null" json:"lng" validate:"longitude"`
	Floor       *string `json:"floor"` // e.g. "1", "2", "Basement"
}
