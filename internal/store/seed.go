package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"campus-occupancy-backend/config"
	"campus-occupancy-backend/internal/contract"
)

// Seed creates the configured locations when the store holds none. It
// returns the number of locations created.
func Seed(ctx context.Context, s Store, seeds []config.SeedLocation) (int, error) {
	if len(seeds) == 0 {
		return 0, nil
	}
	existing, err := s.ListLocations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing locations: %w", err)
	}
	if len(existing) > 0 {
		log.Info().Int("existing", len(existing)).Msg("store already has locations; skipping seed")
		return 0, nil
	}

	created := 0
	for _, seed := range seeds {
		lat, lng := seed.Lat, seed.Lng
		in := contract.LocationInsert{
			Name:        seed.Name,
			Description: optional(seed.Description),
			Type:        seed.Type,
			Lat:         &lat,
			Lng:         &lng,
			Floor:       optional(seed.Floor),
		}
		if _, err := s.CreateLocation(ctx, in); err != nil {
			return created, fmt.Errorf("failed to seed location %q: %w", seed.Name, err)
		}
		created++
	}
	log.Info().Int("created", created).Msg("seeded locations")
	return created, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
