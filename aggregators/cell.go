package aggregators

import (
	"fmt"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
	"github.com/go-skim/skim/reservoir"
)

// quantileState is the kind-erased surface the quantile adaptors share, so
// that only value extraction and cell construction need to dispatch on the
// input kind
type quantileState interface {
	skim.Cell
	merge(other skim.Cell) error
	toBytes() ([]byte, error)
	quantile(level float64) float64
	quantiles(levels []float64, out []float64) []float64
}

// samplerCell wraps one reservoir sampler as per-group aggregate state
type samplerCell[T skim.Value] struct {
	samp *reservoir.Sampler[T]
}

func newSamplerCell[T skim.Value](capacity int, opts []reservoir.Option) (skim.Cell, error) {
	samp, err := reservoir.New[T](capacity, opts...)
	if err != nil {
		return nil, err
	}
	return &samplerCell[T]{samp: samp}, nil
}

func loadSamplerCell[T skim.Value](buf []byte, opts []reservoir.Option) (skim.Cell, error) {
	samp, err := reservoir.FromBytes[T](buf, opts...)
	if err != nil {
		return nil, err
	}
	return &samplerCell[T]{samp: samp}, nil
}

// Seen returns the total number of values ever accumulated into this cell
func (c *samplerCell[T]) Seen() uint64 { return c.samp.Seen() }

// Empty returns true iff no value was ever accumulated into this cell
func (c *samplerCell[T]) Empty() bool { return c.samp.Seen() == 0 }

func (c *samplerCell[T]) merge(other skim.Cell) error {
	oc, ok := other.(*samplerCell[T])
	if !ok {
		return fmt.Errorf("Incoming cell is not a %s sampler cell", skim.KindOf[T]())
	}
	return c.samp.Merge(oc.samp)
}

func (c *samplerCell[T]) toBytes() ([]byte, error) { return c.samp.ToBytes() }

func (c *samplerCell[T]) quantile(level float64) float64 { return c.samp.Quantile(level) }

func (c *samplerCell[T]) quantiles(levels []float64, out []float64) []float64 {
	return c.samp.Quantiles(levels, out)
}

// reservoirAgg carries the configuration shared by the sampling quantile
// adaptors and implements every operation of the aggregate contract that
// does not depend on how many levels were requested
type reservoirAgg struct {
	colName  string
	capacity int
	seed     *[2]uint64
	promote  bool
	bound    bool
	in       skim.Kind
	out      skim.Kind
}

// Col returns the name of the input column this aggregation reads
func (a *reservoirAgg) Col() string { return a.colName }

// DeclareResultType binds the aggregation to its input kind and returns the
// result kind: the input's floating promotion when promotion is on, the
// input kind itself otherwise
func (a *reservoirAgg) DeclareResultType(input skim.Kind) (skim.Kind, error) {
	if input > skim.DateTime {
		return 0, errors.IncompatibleKindError{Expected: "a numeric kind", Actual: input.String()}
	}
	a.in = input
	if a.promote {
		a.out = input.Promote()
	} else {
		a.out = input
	}
	a.bound = true
	return a.out, nil
}

func (a *reservoirAgg) samplerOpts() []reservoir.Option {
	if a.seed == nil {
		return nil
	}
	return []reservoir.Option{reservoir.WithSeed(a.seed[0], a.seed[1])}
}

// NewCell allocates an empty sampler cell for a newly seen group
func (a *reservoirAgg) NewCell() (skim.Cell, error) {
	if !a.bound {
		return nil, errors.ConfigurationError{Reason: "input kind not declared"}
	}
	opts := a.samplerOpts()
	switch a.in {
	case skim.Int8:
		return newSamplerCell[int8](a.capacity, opts)
	case skim.Int16:
		return newSamplerCell[int16](a.capacity, opts)
	case skim.Int32:
		return newSamplerCell[int32](a.capacity, opts)
	case skim.Int64:
		return newSamplerCell[int64](a.capacity, opts)
	case skim.Uint8:
		return newSamplerCell[uint8](a.capacity, opts)
	case skim.Uint16, skim.Date:
		return newSamplerCell[uint16](a.capacity, opts)
	case skim.Uint32, skim.DateTime:
		return newSamplerCell[uint32](a.capacity, opts)
	case skim.Uint64:
		return newSamplerCell[uint64](a.capacity, opts)
	case skim.Float32:
		return newSamplerCell[float32](a.capacity, opts)
	}
	return newSamplerCell[float64](a.capacity, opts)
}

// Add accumulates the row'th value of col into a cell
func (a *reservoirAgg) Add(cell skim.Cell, col skim.Column, row int) error {
	if !a.bound || col.Kind() != a.in {
		return errors.IncompatibleKindError{Expected: a.in.String(), Actual: col.Kind().String()}
	}
	switch a.in {
	case skim.Int8:
		c, ok := cell.(*samplerCell[int8])
		if !ok {
			return fmt.Errorf("Incoming cell is not an int8 sampler cell")
		}
		c.samp.Insert(col.Int8At(row))
	case skim.Int16:
		c, ok := cell.(*samplerCell[int16])
		if !ok {
			return fmt.Errorf("Incoming cell is not an int16 sampler cell")
		}
		c.samp.Insert(col.Int16At(row))
	case skim.Int32:
		c, ok := cell.(*samplerCell[int32])
		if !ok {
			return fmt.Errorf("Incoming cell is not an int32 sampler cell")
		}
		c.samp.Insert(col.Int32At(row))
	case skim.Int64:
		c, ok := cell.(*samplerCell[int64])
		if !ok {
			return fmt.Errorf("Incoming cell is not an int64 sampler cell")
		}
		c.samp.Insert(col.Int64At(row))
	case skim.Uint8:
		c, ok := cell.(*samplerCell[uint8])
		if !ok {
			return fmt.Errorf("Incoming cell is not a uint8 sampler cell")
		}
		c.samp.Insert(col.Uint8At(row))
	case skim.Uint16, skim.Date:
		c, ok := cell.(*samplerCell[uint16])
		if !ok {
			return fmt.Errorf("Incoming cell is not a uint16 sampler cell")
		}
		c.samp.Insert(col.Uint16At(row))
	case skim.Uint32, skim.DateTime:
		c, ok := cell.(*samplerCell[uint32])
		if !ok {
			return fmt.Errorf("Incoming cell is not a uint32 sampler cell")
		}
		c.samp.Insert(col.Uint32At(row))
	case skim.Uint64:
		c, ok := cell.(*samplerCell[uint64])
		if !ok {
			return fmt.Errorf("Incoming cell is not a uint64 sampler cell")
		}
		c.samp.Insert(col.Uint64At(row))
	case skim.Float32:
		c, ok := cell.(*samplerCell[float32])
		if !ok {
			return fmt.Errorf("Incoming cell is not a float32 sampler cell")
		}
		c.samp.Insert(col.Float32At(row))
	default:
		c, ok := cell.(*samplerCell[float64])
		if !ok {
			return fmt.Errorf("Incoming cell is not a float64 sampler cell")
		}
		c.samp.Insert(col.Float64At(row))
	}
	return nil
}

// Merge merges another cell into cell, leaving other untouched
func (a *reservoirAgg) Merge(cell skim.Cell, other skim.Cell) error {
	c, ok := cell.(quantileState)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sampler cell")
	}
	return c.merge(other)
}

// Serialize encodes a cell's sampler state
func (a *reservoirAgg) Serialize(cell skim.Cell) ([]byte, error) {
	c, ok := cell.(quantileState)
	if !ok {
		return nil, fmt.Errorf("Incoming cell is not a sampler cell")
	}
	return c.toBytes()
}

// Deserialize produces a new cell from serialized sampler state
func (a *reservoirAgg) Deserialize(buf []byte) (skim.Cell, error) {
	if !a.bound {
		return nil, errors.ConfigurationError{Reason: "input kind not declared"}
	}
	opts := a.samplerOpts()
	switch a.in {
	case skim.Int8:
		return loadSamplerCell[int8](buf, opts)
	case skim.Int16:
		return loadSamplerCell[int16](buf, opts)
	case skim.Int32:
		return loadSamplerCell[int32](buf, opts)
	case skim.Int64:
		return loadSamplerCell[int64](buf, opts)
	case skim.Uint8:
		return loadSamplerCell[uint8](buf, opts)
	case skim.Uint16, skim.Date:
		return loadSamplerCell[uint16](buf, opts)
	case skim.Uint32, skim.DateTime:
		return loadSamplerCell[uint32](buf, opts)
	case skim.Uint64:
		return loadSamplerCell[uint64](buf, opts)
	case skim.Float32:
		return loadSamplerCell[float32](buf, opts)
	}
	return loadSamplerCell[float64](buf, opts)
}
