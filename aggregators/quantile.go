package aggregators

import (
	"fmt"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
)

// Quantile returns a single-quantile aggregation over the named column,
// estimating the median unless WithLevel says otherwise. Each group keeps a
// bounded uniform sample of its values; the estimate interpolates between
// the sample's order statistics at finalization.
func Quantile(colName string, opts ...Option) (skim.Aggregator, error) {
	conf := defaultOptions()
	for _, opt := range opts {
		opt(conf)
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return &quantileAgg{
		reservoirAgg: reservoirAgg{
			colName:  colName,
			capacity: conf.capacity,
			seed:     conf.seed,
			promote:  conf.promote,
		},
		level: conf.level,
	}, nil
}

type quantileAgg struct {
	reservoirAgg
	level float64
}

// Configure validates and stores the quantile level. Zero parameters fall
// back to the median; more than one is a parameter count error.
func (q *quantileAgg) Configure(params []float64) error {
	if len(params) > 1 {
		return errors.ParameterCountError{Function: "quantile", Min: 0, Max: 1, Actual: len(params)}
	}
	if len(params) == 0 {
		q.level = 0.5
		return nil
	}
	if params[0] < 0 || params[0] > 1 {
		return errors.LevelRangeError{Level: params[0]}
	}
	q.level = params[0]
	return nil
}

// Finalize appends one group's estimated quantile to out. An empty cell
// appends the sentinel instead: NaN for floating results, which integral
// sinks narrow to zero.
func (q *quantileAgg) Finalize(cell skim.Cell, out skim.ResultSink) error {
	c, ok := cell.(quantileState)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sampler cell")
	}
	out.AppendFloat64(c.quantile(q.level))
	return nil
}
