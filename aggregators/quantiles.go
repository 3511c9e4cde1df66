package aggregators

import (
	"fmt"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
)

// Quantiles returns a multi-quantile aggregation over the named column.
// Levels come from WithLevels or a later Configure call, and the result
// column carries one array entry per group with the estimates in the
// order the levels were given. All levels read out of a single shared
// sample per group, so asking for nine deciles costs the same memory as
// asking for one.
func Quantiles(colName string, opts ...Option) (skim.Aggregator, error) {
	conf := defaultOptions()
	for _, opt := range opts {
		opt(conf)
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	if len(conf.levels) == 0 {
		return nil, errors.ParameterCountError{Function: "quantiles", Min: 1, Max: -1, Actual: 0}
	}
	levels := make([]float64, len(conf.levels))
	copy(levels, conf.levels)
	return &quantilesAgg{
		reservoirAgg: reservoirAgg{
			colName:  colName,
			capacity: conf.capacity,
			seed:     conf.seed,
			promote:  conf.promote,
		},
		levels: levels,
	}, nil
}

type quantilesAgg struct {
	reservoirAgg
	levels []float64
}

// Configure replaces the level list. At least one level is required.
func (q *quantilesAgg) Configure(params []float64) error {
	if len(params) == 0 {
		return errors.ParameterCountError{Function: "quantiles", Min: 1, Max: -1, Actual: 0}
	}
	for _, level := range params {
		if level < 0 || level > 1 {
			return errors.LevelRangeError{Level: level}
		}
	}
	q.levels = make([]float64, len(params))
	copy(q.levels, params)
	return nil
}

// Finalize appends one group's estimates as an array entry, one estimate
// per configured level, in configuration order. The shared sample is
// sorted once for the whole batch of levels.
func (q *quantilesAgg) Finalize(cell skim.Cell, out skim.ResultSink) error {
	c, ok := cell.(quantileState)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sampler cell")
	}
	out.AppendFloats(c.quantiles(q.levels, nil))
	return nil
}
