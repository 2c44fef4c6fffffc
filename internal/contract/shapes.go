package contract

import "campus-occupancy-backend/internal/model"

// LocationInsert is the body of a create-location request. Server-assigned
// fields are absent.
type LocationInsert struct {
	Name        string   `json:"name" validate:"required"`
	Description *string  `json:"description"`
	Type        string   `json:"type" validate:"required"`
	Lat         *float64 `json:"lat" validate:"required,latitude"`
	Lng         *float64 `json:"lng" validate:"required,longitude"`
	Floor       *string  `json:"floor"`
}

// Location converts the insert shape into an unsaved record.
func (in LocationInsert) Location() model.Location {
	loc := model.Location{
		Name:        in.Name,
		Description: in.Description,
		Type:        in.Type,
		Floor:       in.Floor,
	}
	if in.Lat != nil {
		loc.Lat = *in.Lat
	}
	if in.Lng != nil {
		loc.Lng = *in.Lng
	}
	return loc
}

// OccupancyUpdate is the body of an update-occupancy request. Either field
// may be omitted; both are needed to create the first record.
type OccupancyUpdate struct {
	Level      *string `json:"level,omitempty" validate:"omitempty,level"`
	Percentage *int    `json:"percentage,omitempty" validate:"omitempty,min=0,max=100"`
}
