// Package reservoir implements fixed-capacity uniform sampling of numeric
// streams, the bounded-memory summary behind Skim's quantile aggregations.
// Samplers support incremental insertion, weighted merging of independently
// built samplers, and a frozen binary encoding for spill and transfer.
package reservoir

import (
	"math"
	"math/rand/v2"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
	"github.com/go-skim/skim/quantile"
)

const (
	// DefaultCapacity is the sample capacity used when none is configured
	DefaultCapacity = 8192
	// MaxSeenCount is the bound at which a Sampler's seen count saturates
	// instead of overflowing
	MaxSeenCount = uint64(1) << 62
)

// Sampler maintains a uniform random sample of up to capacity values from a
// stream of unknown length, in a single pass. Each Sampler owns its random
// state, so independent Samplers never contend; a Sampler is not safe for
// concurrent use.
type Sampler[T skim.Value] struct {
	capacity int
	seen     uint64
	sample   []T
	rng      *rand.Rand
}

type samplerConf struct {
	seed   [2]uint64
	seeded bool
}

// Option configures a Sampler
type Option func(*samplerConf)

// WithSeed fixes the Sampler's random source, making replacement and merge
// decisions reproducible across runs
func WithSeed(hi uint64, lo uint64) Option {
	return func(c *samplerConf) {
		c.seed = [2]uint64{hi, lo}
		c.seeded = true
	}
}

// New produces an empty Sampler. Capacity must lie within [1, 4294967295]
// and is fixed for the Sampler's lifetime; anything else is rejected here
// rather than at insert time.
func New[T skim.Value](capacity int, opts ...Option) (*Sampler[T], error) {
	if capacity <= 0 || capacity > math.MaxUint32 {
		return nil, errors.CapacityError{Capacity: capacity}
	}
	conf := &samplerConf{}
	for _, opt := range opts {
		opt(conf)
	}
	if !conf.seeded {
		conf.seed = [2]uint64{rand.Uint64(), rand.Uint64()}
	}
	return &Sampler[T]{
		capacity: capacity,
		rng:      rand.New(rand.NewPCG(conf.seed[0], conf.seed[1])),
	}, nil
}

// Insert accumulates one value. The first capacity values are always
// retained; after that each incoming value replaces a uniformly chosen slot
// with probability capacity/seen, which keeps the retained set a uniform
// random subset of everything inserted so far.
func (s *Sampler[T]) Insert(v T) {
	if s.seen < uint64(s.capacity) {
		s.sample = append(s.sample, v)
		s.seen++
		return
	}
	s.seen = saturatingAdd(s.seen, 1)
	slot := s.rng.Uint64N(s.seen)
	if slot < uint64(s.capacity) {
		s.sample[slot] = v
	}
}

// Merge folds other into this Sampler, leaving other untouched. The result
// is distributed as if this Sampler had observed both input streams
// concatenated, regardless of how different their lengths were: when the
// union of both samples overflows capacity, elements are drawn from the two
// sources with probability proportional to the share of the combined stream
// each source still represents. Samplers of different capacity do not merge.
func (s *Sampler[T]) Merge(other *Sampler[T]) error {
	if s.capacity != other.capacity {
		return errors.CapacityMismatchError{Ours: s.capacity, Theirs: other.capacity}
	}
	if other.seen == 0 {
		return nil
	}
	if s.seen == 0 {
		s.sample = append(s.sample[:0], other.sample...)
		s.seen = other.seen
		return nil
	}
	if len(s.sample)+len(other.sample) <= s.capacity {
		// neither stream has ever overflowed, so the union is exact
		s.sample = append(s.sample, other.sample...)
		s.seen = saturatingAdd(s.seen, other.seen)
		return nil
	}
	// Each retained element stands in for seen/len(sample) stream elements.
	// Draw capacity elements from the shuffled union, choosing a source at
	// every step with probability proportional to the stream weight it still
	// holds.
	ours := s.sample
	theirs := append([]T(nil), other.sample...)
	s.rng.Shuffle(len(ours), func(i, j int) { ours[i], ours[j] = ours[j], ours[i] })
	s.rng.Shuffle(len(theirs), func(i, j int) { theirs[i], theirs[j] = theirs[j], theirs[i] })
	weightOurs := float64(s.seen) / float64(len(ours))
	weightTheirs := float64(other.seen) / float64(len(theirs))
	merged := make([]T, 0, s.capacity)
	for len(merged) < s.capacity {
		remainOurs := weightOurs * float64(len(ours))
		remainTheirs := weightTheirs * float64(len(theirs))
		if len(theirs) == 0 || (len(ours) > 0 && s.rng.Float64()*(remainOurs+remainTheirs) < remainOurs) {
			merged = append(merged, ours[len(ours)-1])
			ours = ours[:len(ours)-1]
		} else {
			merged = append(merged, theirs[len(theirs)-1])
			theirs = theirs[:len(theirs)-1]
		}
	}
	s.sample = merged
	s.seen = saturatingAdd(s.seen, other.seen)
	return nil
}

// Len returns the number of values currently retained, which is always
// min(Seen(), Cap())
func (s *Sampler[T]) Len() int { return len(s.sample) }

// Cap returns the fixed capacity of this Sampler
func (s *Sampler[T]) Cap() int { return s.capacity }

// Seen returns the total number of values ever inserted, saturating at
// MaxSeenCount
func (s *Sampler[T]) Seen() uint64 { return s.seen }

// Values returns a copy of the retained sample, in no particular order
func (s *Sampler[T]) Values() []T {
	return append([]T(nil), s.sample...)
}

// Quantile estimates the level-quantile of everything inserted so far. The
// read-out sorts a private snapshot, never the live sample, so the Sampler
// remains valid for further inserts and merges. An empty Sampler yields NaN.
func (s *Sampler[T]) Quantile(level float64) float64 {
	return quantile.Interpolated(s.sample, level)
}

// Quantiles estimates one quantile per level from a single snapshot,
// appending to out in the caller's level order
func (s *Sampler[T]) Quantiles(levels []float64, out []float64) []float64 {
	return quantile.Multi(s.sample, levels, out)
}

// saturatingAdd adds two seen counts, saturating at MaxSeenCount
func saturatingAdd(a uint64, b uint64) uint64 {
	if a > MaxSeenCount-b {
		return MaxSeenCount
	}
	return a + b
}
