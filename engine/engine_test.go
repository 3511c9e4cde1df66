package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/go-skim/skim"
	"github.com/go-skim/skim/aggregators"
	"github.com/go-skim/skim/config"
)

type sliceSource struct {
	schema  map[string]skim.Kind
	batches []*Batch
	next    int
}

func (s *sliceSource) Schema() map[string]skim.Kind { return s.schema }

func (s *sliceSource) Next(ctx context.Context) (*Batch, error) {
	if s.next >= len(s.batches) {
		return nil, io.EOF
	}
	b := s.batches[s.next]
	s.next++
	return b, nil
}

type blockedSource struct{ schema map[string]skim.Kind }

func (s *blockedSource) Schema() map[string]skim.Kind { return s.schema }

func (s *blockedSource) Next(ctx context.Context) (*Batch, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func createTestColumn(t *testing.T, vs ...float64) skim.Column {
	builder := skim.NewColumnBuilder(skim.Float64)
	for _, v := range vs {
		builder.AppendFloat64(v)
	}
	col, err := builder.Build()
	require.Nil(t, err)
	return col
}

func createTestBatch(t *testing.T, keys []string, values ...float64) *Batch {
	require.Equal(t, len(keys), len(values))
	bkeys := make([][]byte, len(keys))
	for i, k := range keys {
		bkeys[i] = []byte(k)
	}
	return &Batch{
		Keys: bkeys,
		Cols: map[string]skim.Column{"meters": createTestColumn(t, values...)},
	}
}

func createTestSource(batches ...*Batch) *sliceSource {
	return &sliceSource{
		schema:  map[string]skim.Kind{"meters": skim.Float64},
		batches: batches,
	}
}

func createTestConfig(shards int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Shards = shards
	cfg.Capacity = 64
	return cfg
}

func groupNames(result *Result) []string {
	names := make([]string, len(result.Groups))
	for i, key := range result.Groups {
		names[i] = string(key)
	}
	return names
}

func TestRunSingleAggregation(t *testing.T) {
	src := createTestSource(
		createTestBatch(t, []string{"b", "a", "b"}, 1, 2, 3),
		createTestBatch(t, []string{"a", "c"}, 4, 5),
	)
	count, err := aggregators.Count("meters")
	require.Nil(t, err)

	result, err := Run(context.Background(), createTestConfig(2), src, []Aggregation{{Name: "rows", Agg: count}})
	require.Nil(t, err)
	require.Equal(t, []string{"a", "b", "c"}, groupNames(result))

	rows := result.Columns["rows"]
	require.Equal(t, skim.Uint64, rows.Kind())
	require.Equal(t, uint64(2), rows.Uint64At(0))
	require.Equal(t, uint64(2), rows.Uint64At(1))
	require.Equal(t, uint64(1), rows.Uint64At(2))
}

func TestRunMultipleAggregations(t *testing.T) {
	src := createTestSource(
		createTestBatch(t, []string{"a", "a", "b"}, 1, 3, 10),
		createTestBatch(t, []string{"b", "a"}, 30, 5),
	)
	median, err := aggregators.Quantile("meters")
	require.Nil(t, err)
	total, err := aggregators.Sum("meters")
	require.Nil(t, err)
	count, err := aggregators.Count("meters")
	require.Nil(t, err)

	result, err := Run(context.Background(), createTestConfig(2), src, []Aggregation{
		{Name: "median", Agg: median},
		{Name: "total", Agg: total},
		{Name: "rows", Agg: count},
	})
	require.Nil(t, err)
	require.Equal(t, []string{"a", "b"}, groupNames(result))
	require.Equal(t, float64(3), result.Columns["median"].Float64At(0))
	require.Equal(t, float64(20), result.Columns["median"].Float64At(1))
	require.Equal(t, float64(9), result.Columns["total"].Float64At(0))
	require.Equal(t, float64(40), result.Columns["total"].Float64At(1))
	require.Equal(t, uint64(3), result.Columns["rows"].Uint64At(0))
	require.Equal(t, uint64(2), result.Columns["rows"].Uint64At(1))
}

func TestRunMergesGroupsAcrossManyBatches(t *testing.T) {
	var batches []*Batch
	for i := 0; i < 16; i++ {
		batches = append(batches, createTestBatch(t, []string{"x", "y"}, float64(i), float64(100+i)))
	}
	src := createTestSource(batches...)
	total, err := aggregators.Sum("meters")
	require.Nil(t, err)

	result, err := Run(context.Background(), createTestConfig(4), src, []Aggregation{{Name: "total", Agg: total}})
	require.Nil(t, err)
	require.Equal(t, []string{"x", "y"}, groupNames(result))
	// 0+1+...+15 = 120, and y adds 100 per row on top
	require.Equal(t, float64(120), result.Columns["total"].Float64At(0))
	require.Equal(t, float64(1720), result.Columns["total"].Float64At(1))
}

func TestRunWithSpill(t *testing.T) {
	defer goleak.VerifyNone(t)
	var batches []*Batch
	keys := []string{"g0", "g1", "g2", "g3", "g4", "g5", "g6", "g7"}
	for i := 0; i < 4; i++ {
		values := make([]float64, len(keys))
		for j := range values {
			values[j] = float64(i*len(keys) + j)
		}
		batches = append(batches, createTestBatch(t, keys, values...))
	}
	src := createTestSource(batches...)
	count, err := aggregators.Count("meters")
	require.Nil(t, err)
	total, err := aggregators.Sum("meters")
	require.Nil(t, err)

	spillDir := filepath.Join(t.TempDir(), "spill")
	cfg := createTestConfig(2)
	cfg.Spill.Enabled = true
	cfg.Spill.Dir = spillDir
	// small enough that some state demotes all the way to disk
	cfg.Spill.CacheSize = 5
	cfg.Spill.CompressedFraction = 0.5
	cfg.Spill.Codec = "lz4"

	result, err := Run(context.Background(), cfg, src, []Aggregation{
		{Name: "rows", Agg: count},
		{Name: "total", Agg: total},
	})
	require.Nil(t, err)
	require.Equal(t, keys, groupNames(result))
	for i := range keys {
		require.Equal(t, uint64(4), result.Columns["rows"].Uint64At(i))
		// each group sums its index across 4 batches of stride 8
		expected := float64(4*i) + 48
		require.Equal(t, expected, result.Columns["total"].Float64At(i))
	}

	// the cache destroys itself after the pass, leaving no spill files
	entries, err := os.ReadDir(spillDir)
	require.Nil(t, err)
	require.Equal(t, 0, len(entries))
}

func TestRunCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)
	src := &blockedSource{schema: map[string]skim.Kind{"meters": skim.Float64}}
	count, err := aggregators.Count("meters")
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, createTestConfig(2), src, []Aggregation{{Name: "rows", Agg: count}})
		done <- err
	}()
	cancel()
	require.Equal(t, context.Canceled, <-done)
}

func TestRunEmptySource(t *testing.T) {
	src := createTestSource()
	count, err := aggregators.Count("meters")
	require.Nil(t, err)

	result, err := Run(context.Background(), createTestConfig(2), src, []Aggregation{{Name: "rows", Agg: count}})
	require.Nil(t, err)
	require.Equal(t, 0, len(result.Groups))
	require.Equal(t, 0, result.Columns["rows"].Len())
}

func TestRunRejectsMissingColumn(t *testing.T) {
	src := createTestSource()
	count, err := aggregators.Count("liters")
	require.Nil(t, err)

	_, err = Run(context.Background(), createTestConfig(1), src, []Aggregation{{Name: "rows", Agg: count}})
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "liters")
}

func TestRunRejectsDuplicateNames(t *testing.T) {
	src := createTestSource()
	count, err := aggregators.Count("meters")
	require.Nil(t, err)

	_, err = Run(context.Background(), createTestConfig(1), src, []Aggregation{
		{Name: "rows", Agg: count},
		{Name: "rows", Agg: count},
	})
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "used twice")
}

func TestRunRejectsEmptyAggregations(t *testing.T) {
	src := createTestSource()
	_, err := Run(context.Background(), createTestConfig(1), src, nil)
	require.NotNil(t, err)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	src := createTestSource()
	count, err := aggregators.Count("meters")
	require.Nil(t, err)

	cfg := createTestConfig(1)
	cfg.Capacity = -1
	_, err = Run(context.Background(), cfg, src, []Aggregation{{Name: "rows", Agg: count}})
	require.NotNil(t, err)
}
