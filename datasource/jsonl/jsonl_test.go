package jsonl

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-skim/skim"
	"github.com/go-skim/skim/aggregators"
	"github.com/go-skim/skim/config"
	"github.com/go-skim/skim/engine"
)

func TestJSONLSourceBatches(t *testing.T) {
	data := "{\"name\": \"a\", \"meta\": {\"index\": 1}}\n" +
		"{\"name\": \"b\", \"meta\": {\"index\": 2}}\n" +
		"{\"name\": \"a\", \"meta\": {\"index\": 3}}"
	src, err := NewSource(strings.NewReader(data), &SourceConf{
		BatchSize: 2,
		KeyPath:   "name",
		Cols:      map[string]skim.Kind{"meta.index": skim.Int64},
	})
	require.Nil(t, err)
	require.Equal(t, map[string]skim.Kind{"meta.index": skim.Int64}, src.Schema())

	batch, err := src.Next(context.Background())
	require.Nil(t, err)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, batch.Keys)
	col := batch.Cols["meta.index"]
	require.Equal(t, skim.Int64, col.Kind())
	require.Equal(t, int64(1), col.Int64At(0))
	require.Equal(t, int64(2), col.Int64At(1))

	batch, err = src.Next(context.Background())
	require.Nil(t, err)
	require.Equal(t, [][]byte{[]byte("a")}, batch.Keys)
	require.Equal(t, int64(3), batch.Cols["meta.index"].Int64At(0))

	_, err = src.Next(context.Background())
	require.Equal(t, io.EOF, err)
}

func TestJSONLSourceEmptyInput(t *testing.T) {
	src, err := NewSource(strings.NewReader(""), &SourceConf{
		KeyPath: "name",
		Cols:    map[string]skim.Kind{"v": skim.Float64},
	})
	require.Nil(t, err)

	_, err = src.Next(context.Background())
	require.Equal(t, io.EOF, err)
}

func TestJSONLSourceRejectsMissingKey(t *testing.T) {
	src, err := NewSource(strings.NewReader("{\"v\": 1}"), &SourceConf{
		KeyPath: "name",
		Cols:    map[string]skim.Kind{"v": skim.Float64},
	})
	require.Nil(t, err)

	_, err = src.Next(context.Background())
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "key path")
}

func TestJSONLSourceRejectsNonNumericColumn(t *testing.T) {
	src, err := NewSource(strings.NewReader("{\"name\": \"a\", \"v\": \"high\"}"), &SourceConf{
		KeyPath: "name",
		Cols:    map[string]skim.Kind{"v": skim.Float64},
	})
	require.Nil(t, err)

	_, err = src.Next(context.Background())
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "was not a number")
}

func TestJSONLSourceRejectsBadConf(t *testing.T) {
	_, err := NewSource(strings.NewReader(""), &SourceConf{
		Cols: map[string]skim.Kind{"v": skim.Float64},
	})
	require.NotNil(t, err)

	_, err = NewSource(strings.NewReader(""), &SourceConf{KeyPath: "name"})
	require.NotNil(t, err)
}

func TestJSONLSourceRespectsContext(t *testing.T) {
	src, err := NewSource(strings.NewReader("{\"name\": \"a\", \"v\": 1}"), &SourceConf{
		KeyPath: "name",
		Cols:    map[string]skim.Kind{"v": skim.Float64},
	})
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	require.Equal(t, context.Canceled, err)
}

func TestJSONLSourceFeedsAggregation(t *testing.T) {
	var rows []string
	for i := 1; i <= 100; i++ {
		rows = append(rows, fmt.Sprintf("{\"host\": \"web\", \"latency\": %d}", i))
		rows = append(rows, fmt.Sprintf("{\"host\": \"db\", \"latency\": %d}", 10*i))
	}
	src, err := NewSource(strings.NewReader(strings.Join(rows, "\n")), &SourceConf{
		BatchSize: 16,
		KeyPath:   "host",
		Cols:      map[string]skim.Kind{"latency": skim.Float64},
	})
	require.Nil(t, err)

	p90, err := aggregators.Quantile("latency", aggregators.WithLevel(0.9))
	require.Nil(t, err)
	count, err := aggregators.Count("latency")
	require.Nil(t, err)

	cfg := config.DefaultConfig()
	cfg.Shards = 2
	result, err := engine.Run(context.Background(), cfg, src, []engine.Aggregation{
		{Name: "p90", Agg: p90},
		{Name: "rows", Agg: count},
	})
	require.Nil(t, err)
	require.Equal(t, [][]byte{[]byte("db"), []byte("web")}, result.Groups)
	require.Equal(t, uint64(100), result.Columns["rows"].Uint64At(0))
	require.Equal(t, uint64(100), result.Columns["rows"].Uint64At(1))
	require.InDelta(t, 901, result.Columns["p90"].Float64At(0), 10)
	require.InDelta(t, 90.1, result.Columns["p90"].Float64At(1), 1)
}
