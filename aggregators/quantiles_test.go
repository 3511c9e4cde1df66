package aggregators

import (
	"math"
	"testing"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
	"github.com/go-skim/skim/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestQuantilesOrderedLevels(t *testing.T) {
	agg, err := Quantiles("duration", WithLevels(0.9, 0.1, 0.5), WithSeed(1, 2))
	require.Nil(t, err)
	rk, err := agg.DeclareResultType(skim.Int64)
	require.Nil(t, err)
	require.Equal(t, skim.Float64, rk)

	cell, err := agg.NewCell()
	require.Nil(t, err)
	vs := make([]int64, 0, 100)
	for i := int64(1); i <= 100; i++ {
		vs = append(vs, i)
	}
	addAll(t, agg, cell, createTestColumn(t, skim.Int64, vs...))

	res := finalizeOne(t, agg, cell, rk)
	require.True(t, res.IsArray())
	out := res.FloatsAt(0)
	require.Equal(t, 3, len(out))
	require.InDelta(t, 90, out[0], 1)
	require.InDelta(t, 10, out[1], 1)
	require.InDelta(t, 50, out[2], 1)
	// results follow the caller's level order, not sorted order
	require.True(t, out[0] > out[2])
	require.True(t, out[2] > out[1])
}

func TestQuantilesRequireLevels(t *testing.T) {
	_, err := Quantiles("duration")
	require.IsType(t, errors.ParameterCountError{}, err)

	agg, err := Quantiles("duration", WithLevels(0.5))
	require.Nil(t, err)
	require.IsType(t, errors.ParameterCountError{}, agg.Configure(nil))
	require.IsType(t, errors.LevelRangeError{}, agg.Configure([]float64{0.5, 2}))
	require.Nil(t, agg.Configure([]float64{0.25, 0.75}))
}

func TestQuantilesEmptyCell(t *testing.T) {
	agg, err := Quantiles("duration", WithLevels(0.1, 0.9))
	require.Nil(t, err)
	rk, err := agg.DeclareResultType(skim.Int64)
	require.Nil(t, err)

	cell, err := agg.NewCell()
	require.Nil(t, err)
	res := finalizeOne(t, agg, cell, rk)
	if diff := testutil.Diff(res.FloatsAt(0), []float64{math.NaN(), math.NaN()}); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestQuantilesManyGroupsShareOneColumn(t *testing.T) {
	agg, err := Quantiles("duration", WithLevels(0, 1), WithSeed(7, 8))
	require.Nil(t, err)
	rk, err := agg.DeclareResultType(skim.Float64)
	require.Nil(t, err)

	a, err := agg.NewCell()
	require.Nil(t, err)
	b, err := agg.NewCell()
	require.Nil(t, err)
	addAll(t, agg, a, createTestColumn(t, skim.Float64, 1.0, 2, 3))
	addAll(t, agg, b, createTestColumn(t, skim.Float64, 10.0, 20))

	sink := skim.NewColumnBuilder(rk)
	require.Nil(t, agg.Finalize(a, sink))
	require.Nil(t, agg.Finalize(b, sink))
	col, err := sink.Build()
	require.Nil(t, err)

	require.Equal(t, 2, col.Len())
	require.Equal(t, []float64{1, 3}, col.FloatsAt(0))
	require.Equal(t, []float64{10, 20}, col.FloatsAt(1))
}
