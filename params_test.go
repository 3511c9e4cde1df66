package skim

import (
	"testing"

	errors "github.com/go-skim/skim/errors"
	"github.com/stretchr/testify/require"
)

func TestLevelsFromJSON(t *testing.T) {
	levels, err := LevelsFromJSON([]byte("[0.5, 0.9, 0.99]"))
	require.Nil(t, err)
	require.Equal(t, []float64{0.5, 0.9, 0.99}, levels)

	// integer entries are still numbers
	levels, err = LevelsFromJSON([]byte("[0, 1]"))
	require.Nil(t, err)
	require.Equal(t, []float64{0, 1}, levels)
}

func TestLevelsFromJSONEmptyArray(t *testing.T) {
	levels, err := LevelsFromJSON([]byte("[]"))
	require.Nil(t, err)
	require.Equal(t, 0, len(levels))
}

func TestLevelsFromJSONRejectsNonArray(t *testing.T) {
	_, err := LevelsFromJSON([]byte("0.5"))
	require.IsType(t, errors.ConfigurationError{}, err)
	_, err = LevelsFromJSON([]byte(`{"level": 0.5}`))
	require.IsType(t, errors.ConfigurationError{}, err)
}

func TestLevelsFromJSONRejectsNonNumericEntry(t *testing.T) {
	_, err := LevelsFromJSON([]byte(`[0.5, "0.9"]`))
	require.IsType(t, errors.ParameterTypeError{}, err)
	require.Equal(t, 1, err.(errors.ParameterTypeError).Index)

	_, err = LevelsFromJSON([]byte("[true]"))
	require.IsType(t, errors.ParameterTypeError{}, err)
}

func TestLevelsFromJSONRejectsOutOfRangeLevel(t *testing.T) {
	_, err := LevelsFromJSON([]byte("[0.5, 1.5]"))
	require.IsType(t, errors.LevelRangeError{}, err)
	_, err = LevelsFromJSON([]byte("[-0.25]"))
	require.IsType(t, errors.LevelRangeError{}, err)
}
