// skim reads JSON lines and prints one JSON summary per group: count, sum
// and configurable quantile estimates of a numeric column.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"

	"github.com/go-skim/skim"
	"github.com/go-skim/skim/aggregators"
	"github.com/go-skim/skim/config"
	"github.com/go-skim/skim/datasource/jsonl"
	"github.com/go-skim/skim/engine"
)

func main() {
	cfgPath := flag.String("config", "skim.yaml", "config file path")
	input := flag.String("input", "", "JSONL input file (defaults to stdin)")
	key := flag.String("key", "", "gjson path of the group key")
	col := flag.String("col", "", "gjson path of the aggregated column")
	kindName := flag.String("kind", "float64", "kind of the aggregated column")
	levelsJSON := flag.String("levels", "[0.5]", "quantile levels as a JSON array")
	sketch := flag.Bool("sketch", false, "estimate with a relative-error sketch instead of a reservoir sample")
	capacity := flag.Int("capacity", 0, "per-group sample capacity (overrides config)")
	shards := flag.Int("shards", 0, "aggregation worker count (overrides config)")
	logLevel := flag.String("log-level", "", "least critical log level emitted (overrides config)")
	spillDir := flag.String("spill-dir", "", "enable spilling to this directory (overrides config)")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	if *key == "" || *col == "" {
		log.Fatal("Both -key and -col are required")
	}

	cfg := config.DefaultConfig()
	if _, err := os.Stat(*cfgPath); err == nil {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("Load config: %v", err)
		}
		cfg = loaded
	} else {
		log.Printf("No config file found, using defaults")
	}

	// CLI overrides
	if *capacity > 0 {
		cfg.Capacity = *capacity
	}
	if *shards > 0 {
		cfg.Shards = *shards
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *spillDir != "" {
		cfg.Spill.Enabled = true
		cfg.Spill.Dir = *spillDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Validate config: %v", err)
	}

	levels, err := skim.LevelsFromJSON([]byte(*levelsJSON))
	if err != nil {
		log.Fatalf("Parse levels: %v", err)
	}
	if len(levels) == 0 {
		log.Fatal("At least one quantile level is required")
	}
	kind, err := skim.ParseKind(*kindName)
	if err != nil {
		log.Fatalf("Parse column kind: %v", err)
	}

	var reader io.Reader = os.Stdin
	if *input != "" && *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("Open input: %v", err)
		}
		defer f.Close()
		reader = f
	}
	src, err := jsonl.NewSource(reader, &jsonl.SourceConf{
		KeyPath: *key,
		Cols:    map[string]skim.Kind{*col: kind},
	})
	if err != nil {
		log.Fatalf("Open source: %v", err)
	}

	aggs, err := buildAggregations(cfg, *col, levels, *sketch)
	if err != nil {
		log.Fatalf("Configure aggregations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	result, err := engine.Run(ctx, cfg, src, aggs)
	if err != nil {
		log.Fatalf("Aggregate: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	for i, group := range result.Groups {
		row := map[string]interface{}{"group": string(group)}
		for name, col := range result.Columns {
			row[name] = jsonValue(col, i)
		}
		if err := enc.Encode(row); err != nil {
			log.Fatalf("Encode result: %v", err)
		}
	}
}

func buildAggregations(cfg *config.Config, col string, levels []float64, sketch bool) ([]engine.Aggregation, error) {
	name := "quantile"
	if len(levels) > 1 {
		name = "quantiles"
	}
	var quant skim.Aggregator
	var err error
	switch {
	case sketch:
		quant, err = aggregators.Sketch(col,
			aggregators.WithLevels(levels...),
			aggregators.WithAccuracy(cfg.SketchAccuracy))
	case len(levels) == 1:
		quant, err = aggregators.Quantile(col,
			aggregators.WithLevel(levels[0]),
			aggregators.WithCapacity(cfg.Capacity),
			aggregators.PromoteToFloat(cfg.PromoteToFloat))
	default:
		quant, err = aggregators.Quantiles(col,
			aggregators.WithLevels(levels...),
			aggregators.WithCapacity(cfg.Capacity),
			aggregators.PromoteToFloat(cfg.PromoteToFloat))
	}
	if err != nil {
		return nil, err
	}
	count, err := aggregators.Count(col)
	if err != nil {
		return nil, err
	}
	sum, err := aggregators.Sum(col)
	if err != nil {
		return nil, err
	}
	return []engine.Aggregation{
		{Name: name, Agg: quant},
		{Name: "count", Agg: count},
		{Name: "sum", Agg: sum},
	}, nil
}

// jsonValue extracts one result entry in its natural JSON shape
func jsonValue(col skim.Column, row int) interface{} {
	if col.IsArray() {
		return col.FloatsAt(row)
	}
	switch col.Kind() {
	case skim.Uint64:
		return col.Uint64At(row)
	case skim.Int64:
		return col.Int64At(row)
	default:
		return col.Float64At(row)
	}
}
