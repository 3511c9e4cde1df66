package skim

import (
	"github.com/tidwall/gjson"

	errors "github.com/go-skim/skim/errors"
)

// LevelsFromJSON parses an aggregate call's level parameters from a JSON
// array, e.g. [0.5, 0.9, 0.99]. Entries which are not numbers are rejected
// with a ParameterTypeError, and levels outside [0, 1] with a
// LevelRangeError. An empty array parses to an empty slice; whether that is
// acceptable is up to the Aggregator being configured.
func LevelsFromJSON(raw []byte) ([]float64, error) {
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return nil, errors.ConfigurationError{Reason: "level parameters must be a JSON array"}
	}
	entries := parsed.Array()
	levels := make([]float64, 0, len(entries))
	for i, entry := range entries {
		if entry.Type != gjson.Number {
			return nil, errors.ParameterTypeError{Index: i, Raw: entry.Raw}
		}
		level := entry.Float()
		if level < 0 || level > 1 {
			return nil, errors.LevelRangeError{Level: level}
		}
		levels = append(levels, level)
	}
	return levels, nil
}
