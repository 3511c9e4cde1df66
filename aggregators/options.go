package aggregators

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"

	errors "github.com/go-skim/skim/errors"
	"github.com/go-skim/skim/reservoir"
)

type aggOptions struct {
	level    float64
	levels   []float64
	capacity int
	seed     *[2]uint64
	promote  bool
	accuracy float64
}

func defaultOptions() *aggOptions {
	return &aggOptions{
		level:    0.5,
		capacity: reservoir.DefaultCapacity,
		promote:  true,
		accuracy: 0.01,
	}
}

// validate reports every option violation at once, before any data flows
func (o *aggOptions) validate() error {
	var result *multierror.Error
	if o.capacity <= 0 || o.capacity > math.MaxUint32 {
		result = multierror.Append(result, errors.CapacityError{Capacity: o.capacity})
	}
	if o.level < 0 || o.level > 1 {
		result = multierror.Append(result, errors.LevelRangeError{Level: o.level})
	}
	for _, level := range o.levels {
		if level < 0 || level > 1 {
			result = multierror.Append(result, errors.LevelRangeError{Level: level})
		}
	}
	if o.accuracy <= 0 || o.accuracy >= 1 {
		result = multierror.Append(result, errors.ConfigurationError{Reason: fmt.Sprintf("sketch accuracy %f is not within (0, 1)", o.accuracy)})
	}
	return result.ErrorOrNil()
}

// Option configures an aggregation at construction time
type Option func(*aggOptions)

// WithLevel sets the quantile level a single-quantile aggregation estimates
func WithLevel(level float64) Option {
	return func(o *aggOptions) {
		o.level = level
	}
}

// WithLevels sets the quantile levels a multi-quantile aggregation
// estimates, in the order results should appear
func WithLevels(levels ...float64) Option {
	return func(o *aggOptions) {
		o.levels = append([]float64(nil), levels...)
	}
}

// WithCapacity sets the sample capacity of each cell, trading memory for
// estimate stability
func WithCapacity(capacity int) Option {
	return func(o *aggOptions) {
		o.capacity = capacity
	}
}

// WithSeed fixes the random source of every cell the aggregation creates,
// making sampling decisions reproducible across runs
func WithSeed(hi uint64, lo uint64) Option {
	return func(o *aggOptions) {
		o.seed = &[2]uint64{hi, lo}
	}
}

// PromoteToFloat controls whether results promote to Float64 or stay in the
// input's numeric family. Ordinal inputs never promote either way.
func PromoteToFloat(promote bool) Option {
	return func(o *aggOptions) {
		o.promote = promote
	}
}

// WithAccuracy sets the relative accuracy of sketch-backed aggregations
func WithAccuracy(accuracy float64) Option {
	return func(o *aggOptions) {
		o.accuracy = accuracy
	}
}
