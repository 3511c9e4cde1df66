// Package engine distributes batched column data across shard workers and
// reduces the resulting per-shard aggregate state into one sorted result.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/go-skim/skim"
	"github.com/go-skim/skim/config"
	errors "github.com/go-skim/skim/errors"
	"github.com/go-skim/skim/groupmap"
	"github.com/go-skim/skim/logging"
	"github.com/go-skim/skim/spill"
)

// Batch is one slab of rows: one group key per row plus the columns those
// rows carry. Keys[i] names the group row i belongs to, and every column
// holds exactly len(Keys) values.
type Batch struct {
	Keys [][]byte
	Cols map[string]skim.Column
}

// A Source produces the batches an aggregation pass consumes. Next is
// called from a single goroutine and returns io.EOF after the last batch.
type Source interface {
	// Schema names every column the source produces, with its kind
	Schema() map[string]skim.Kind
	// Next returns the next batch, or io.EOF once the stream is exhausted
	Next(ctx context.Context) (*Batch, error)
}

// Aggregation pairs a configured aggregator with the name of its result
// column
type Aggregation struct {
	Name string
	Agg  skim.Aggregator
}

// Result is one finalized aggregation pass: group keys in ascending byte
// order, plus one result column per aggregation, indexed by result name.
// Row i of every column describes Groups[i].
type Result struct {
	Groups  [][]byte
	Columns map[string]skim.Column
}

type shard struct {
	id      int
	maps    []*groupmap.Map
	spilled []spillRecord
}

// spillRecord remembers where one cell's serialized state went, so the
// merge phase can pull it back out of the spill cache
type spillRecord struct {
	agg      int
	groupKey []byte
	cacheKey string
}

// Run aggregates every batch of src under aggs and returns the finalized
// per-group results. Batches distribute across cfg.Shards workers, each
// owning a private set of group maps; a group seen by several workers ends
// up with one partial cell per worker, and those partials merge only after
// every worker has quiesced. With spilling enabled, each worker stages its
// serialized cell state through the spill cache instead of holding it
// until the merge. Cancelling ctx stops the pass between batches.
func Run(ctx context.Context, cfg *config.Config, src Source, aggs []Aggregation) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := logging.ParseLevel(cfg.LogLevel)

	resultKinds, err := declareResultTypes(src.Schema(), aggs)
	if err != nil {
		return nil, err
	}

	var cache *spill.Cache
	if cfg.Spill.Enabled {
		cacheConfig, err := cfg.SpillCacheConfig()
		if err != nil {
			return nil, err
		}
		cache, err = spill.NewCache(cacheConfig)
		if err != nil {
			return nil, err
		}
		defer func() {
			if derr := cache.Destroy(); derr != nil {
				log.Printf("Unable to destroy spill cache: %v", derr)
			}
		}()
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		maps := make([]*groupmap.Map, len(aggs))
		for j, agg := range aggs {
			maps[j] = groupmap.New(agg.Agg)
		}
		shards[i] = &shard{id: i, maps: maps}
	}

	if level <= logging.DebugLevel {
		log.Printf("Distributing batches across %d shards...", len(shards))
	}
	batches := make(chan *Batch)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		for {
			batch, err := src.Next(gctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	for _, s := range shards {
		g.Go(func() error {
			for batch := range batches {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				if err := s.consume(aggs, batch); err != nil {
					return err
				}
			}
			if cache != nil {
				return s.spillState(aggs, cache)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if level <= logging.DebugLevel {
		log.Printf("Merging %d shard states...", len(shards))
	}
	final := shards[0].maps
	for _, s := range shards[1:] {
		for i := range aggs {
			if err := final[i].MergeFrom(s.maps[i]); err != nil {
				return nil, err
			}
		}
	}
	if cache != nil {
		if err := restoreSpilled(cache, shards, aggs, final, level); err != nil {
			return nil, err
		}
	}

	keys := make([][]byte, 0, final[0].Len())
	final[0].Range(func(key []byte, _ skim.Cell) error {
		keys = append(keys, key)
		return nil
	})
	slices.SortFunc(keys, bytes.Compare)

	result := &Result{Groups: keys, Columns: make(map[string]skim.Column, len(aggs))}
	for i, agg := range aggs {
		builder := skim.NewColumnBuilder(resultKinds[i])
		for _, key := range keys {
			cell, err := final[i].Lookup(key)
			if err != nil {
				return nil, err
			}
			if err := agg.Agg.Finalize(cell, builder); err != nil {
				return nil, err
			}
		}
		col, err := builder.Build()
		if err != nil {
			return nil, err
		}
		result.Columns[agg.Name] = col
	}
	return result, nil
}

// declareResultTypes binds every aggregator to its input column's kind and
// returns the result kinds, in aggs order
func declareResultTypes(schema map[string]skim.Kind, aggs []Aggregation) ([]skim.Kind, error) {
	if len(aggs) == 0 {
		return nil, errors.ConfigurationError{Reason: "at least one aggregation is required"}
	}
	kinds := make([]skim.Kind, len(aggs))
	seen := make(map[string]bool, len(aggs))
	for i, agg := range aggs {
		if agg.Name == "" {
			return nil, errors.ConfigurationError{Reason: fmt.Sprintf("aggregation %d has no result name", i)}
		}
		if seen[agg.Name] {
			return nil, errors.ConfigurationError{Reason: fmt.Sprintf("aggregation name %s is used twice", agg.Name)}
		}
		seen[agg.Name] = true
		input, ok := schema[agg.Agg.Col()]
		if !ok {
			return nil, errors.ConfigurationError{Reason: fmt.Sprintf("aggregation %s reads column %s, which the source does not provide", agg.Name, agg.Agg.Col())}
		}
		kind, err := agg.Agg.DeclareResultType(input)
		if err != nil {
			return nil, err
		}
		kinds[i] = kind
	}
	return kinds, nil
}

// consume accumulates one batch into this shard's group maps
func (s *shard) consume(aggs []Aggregation, batch *Batch) error {
	for i, agg := range aggs {
		col, ok := batch.Cols[agg.Agg.Col()]
		if !ok {
			return fmt.Errorf("Batch is missing column %s", agg.Agg.Col())
		}
		if col.Len() != len(batch.Keys) {
			return fmt.Errorf("Column %s has %d rows but the batch has %d keys", agg.Agg.Col(), col.Len(), len(batch.Keys))
		}
		m := s.maps[i]
		for row, key := range batch.Keys {
			cell, err := m.Cell(key)
			if err != nil {
				return err
			}
			if err := agg.Agg.Add(cell, col, row); err != nil {
				return err
			}
		}
	}
	return nil
}

// spillState serializes every cell this shard accumulated into the spill
// cache and resets the shard's maps, leaving a manifest for the merge
// phase to restore from
func (s *shard) spillState(aggs []Aggregation, cache *spill.Cache) error {
	for i, agg := range aggs {
		err := s.maps[i].Range(func(key []byte, cell skim.Cell) error {
			state, err := agg.Agg.Serialize(cell)
			if err != nil {
				return err
			}
			cacheKey := fmt.Sprintf("%d/%d/%x", s.id, i, key)
			if err := cache.Add(cacheKey, state); err != nil {
				return err
			}
			s.spilled = append(s.spilled, spillRecord{agg: i, groupKey: key, cacheKey: cacheKey})
			return nil
		})
		if err != nil {
			return err
		}
		s.maps[i] = groupmap.New(agg.Agg)
	}
	return nil
}

// restoreSpilled drains every shard's spill manifest back out of the
// cache, folding the deserialized cells into the final maps
func restoreSpilled(cache *spill.Cache, shards []*shard, aggs []Aggregation, final []*groupmap.Map, level int) error {
	if level <= logging.DebugLevel {
		log.Printf("Restoring %d spilled cells...", cache.Len())
	}
	for _, s := range shards {
		for _, r := range s.spilled {
			state, err := cache.Get(r.cacheKey)
			if err != nil {
				return err
			}
			cell, err := aggs[r.agg].Agg.Deserialize(state)
			if err != nil {
				return err
			}
			if err := final[r.agg].MergeCell(r.groupKey, cell); err != nil {
				return err
			}
		}
	}
	return nil
}
