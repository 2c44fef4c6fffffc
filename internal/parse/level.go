package parse

import (
	"fmt"
	"regexp"
	"strings"

	"campus-occupancy-backend/config"
	"campus-occupancy-backend/internal/model"
)

var spaceRe = regexp.MustCompile(`[\s_-]+`)

// Display labels shown next to each level.
var labels = map[string]string{
	model.LevelLow:      "Quiet",
	model.LevelModerate: "Busy",
	model.LevelHigh:     "Very Busy",
	model.LevelCritical: "Full",
}

// ParseLevel normalises a raw level string. It accepts the level names in
// any case as well as their display labels ("Quiet", "Very Busy", ...).
func ParseLevel(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = spaceRe.ReplaceAllString(s, " ")

	for _, level := range model.Levels {
		if s == level || s == strings.ToLower(labels[level]) {
			return level, nil
		}
	}
	return "", fmt.Errorf("unknown occupancy level: %q", raw)
}

// Label returns the display label of a level, "Unknown" for anything else.
func Label(level string) string {
	if l, ok := labels[strings.ToLower(level)]; ok {
		return l
	}
	return "Unknown"
}

// LevelForPercentage classifies a percentage against the thresholds.
func LevelForPercentage(pct int, t config.Thresholds) string {
	switch {
	case pct >= t.Critical:
		return model.LevelCritical
	case pct >= t.High:
		return model.LevelHigh
	case pct >= t.Moderate:
		return model.LevelModerate
	default:
		return model.LevelLow
	}
}
