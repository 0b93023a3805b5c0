package detectors

import (
	"fmt"
	"log/slog"
)

// Settings selects a detector kind and optionally overrides its model name and score floor
type Settings struct {
	Kind     string  `mapstructure:"kind"`
	Model    string  `mapstructure:"model"`
	MinScore float64 `mapstructure:"min_score"`
	MinArea  int     `mapstructure:"min_area"`
}

var tables = map[string]func() Table{
	"clothing":  ClothingTable,
	"accessory": AccessoryTable,
}

// DefaultSettings registers the clothing and accessory detectors
func DefaultSettings() []Settings {
	return []Settings{{Kind: "clothing"}, {Kind: "accessory"}}
}

// Build returns the detectors described by settings, in order.
func Build(proposer RegionProposer, settings []Settings) ([]Detector, error) {
	if len(settings) == 0 {
		return nil, fmt.Errorf("no detectors configured")
	}

	detectors := make([]Detector, 0, len(settings))
	seen := make(map[string]bool)
	for _, s := range settings {
		newTable, ok := tables[s.Kind]
		if !ok {
			return nil, fmt.Errorf("unknown detector kind: %s", s.Kind)
		}
		if seen[s.Kind] {
			return nil, fmt.Errorf("detector %s registered twice", s.Kind)
		}
		seen[s.Kind] = true

		table := newTable()
		if s.Model != "" {
			table.Model = s.Model
		}
		if s.MinScore > 0 {
			table.MinScore = s.MinScore
		}
		if s.MinArea > 0 {
			table.MinArea = s.MinArea
		}

		slog.Info("Registered detector", "detector", table.Name, "model", table.Model, "min_score", table.MinScore)
		detectors = append(detectors, NewTableDetector(table, proposer))
	}

	return detectors, nil
}
