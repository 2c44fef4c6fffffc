package ingest

// Feed models the upstream sensor feed's response.
type Feed struct {
	Readings []Reading `json:"readings"`
}

// Reading is one location's sample. Level may be empty, in which case it
// is derived from Percentage.
type Reading struct {
	LocationID int64  `json:"location_id"`
	Percentage *int   `json:"percentage"`
	Level      string `json:"level"`
}

// Reading outcomes, also used as metric labels.
const (
	outcomeApplied         = "applied"
	outcomeInvalid         = "invalid"
	outcomeUnknownLocation = "unknown_location"
	outcomeRejected        = "rejected"
	outcomeError           = "error"
)
