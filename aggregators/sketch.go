package aggregators

import (
	"fmt"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/store"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
)

// Sketch returns a quantile aggregation backed by a DDSketch rather than a
// uniform sample. The sketch trades the sampler's fixed value budget for a
// relative-accuracy guarantee: every estimate lands within WithAccuracy of
// the true quantile's value, however many values a group sees, and merges
// are deterministic. Results are always Float64. Levels come from
// WithLevel, WithLevels or a later Configure call; one level finalizes as
// a scalar column, several as an array column.
func Sketch(colName string, opts ...Option) (skim.Aggregator, error) {
	conf := defaultOptions()
	for _, opt := range opts {
		opt(conf)
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	levels := []float64{conf.level}
	if len(conf.levels) > 0 {
		levels = make([]float64, len(conf.levels))
		copy(levels, conf.levels)
	}
	return &sketchAgg{
		colName:  colName,
		accuracy: conf.accuracy,
		levels:   levels,
	}, nil
}

type sketchAgg struct {
	colName  string
	accuracy float64
	levels   []float64
	bound    bool
	in       skim.Kind
}

// sketchCell wraps one DDSketch as per-group aggregate state
type sketchCell struct {
	sketch *ddsketch.DDSketch
}

// Seen returns the total number of values ever accumulated into this cell
func (c *sketchCell) Seen() uint64 { return uint64(math.Round(c.sketch.GetCount())) }

// Empty returns true iff no value was ever accumulated into this cell
func (c *sketchCell) Empty() bool { return c.sketch.GetCount() == 0 }

// Col returns the name of the input column this aggregation reads
func (a *sketchAgg) Col() string { return a.colName }

// Configure replaces the level list. Zero parameters fall back to the
// median.
func (a *sketchAgg) Configure(params []float64) error {
	if len(params) == 0 {
		a.levels = []float64{0.5}
		return nil
	}
	for _, level := range params {
		if level < 0 || level > 1 {
			return errors.LevelRangeError{Level: level}
		}
	}
	a.levels = make([]float64, len(params))
	copy(a.levels, params)
	return nil
}

// DeclareResultType binds the aggregation to its input kind. A sketch
// stores values as floats, so the result kind is always Float64.
func (a *sketchAgg) DeclareResultType(input skim.Kind) (skim.Kind, error) {
	if input > skim.DateTime {
		return 0, errors.IncompatibleKindError{Expected: "a numeric kind", Actual: input.String()}
	}
	a.in = input
	a.bound = true
	return skim.Float64, nil
}

// NewCell allocates an empty sketch cell for a newly seen group
func (a *sketchAgg) NewCell() (skim.Cell, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(a.accuracy)
	if err != nil {
		return nil, err
	}
	return &sketchCell{sketch: sketch}, nil
}

// Add accumulates the row'th value of col into a cell
func (a *sketchAgg) Add(cell skim.Cell, col skim.Column, row int) error {
	if !a.bound || col.Kind() != a.in {
		return errors.IncompatibleKindError{Expected: a.in.String(), Actual: col.Kind().String()}
	}
	c, ok := cell.(*sketchCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sketch cell")
	}
	return c.sketch.Add(col.Float64At(row))
}

// Merge merges another cell into cell, leaving other untouched
func (a *sketchAgg) Merge(cell skim.Cell, other skim.Cell) error {
	c, ok := cell.(*sketchCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sketch cell")
	}
	oc, ok := other.(*sketchCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sketch cell")
	}
	return c.sketch.MergeWith(oc.sketch)
}

// Serialize encodes a cell's sketch state
func (a *sketchAgg) Serialize(cell skim.Cell) ([]byte, error) {
	c, ok := cell.(*sketchCell)
	if !ok {
		return nil, fmt.Errorf("Incoming cell is not a sketch cell")
	}
	var buf []byte
	c.sketch.Encode(&buf, false)
	return buf, nil
}

// Deserialize produces a new cell from serialized sketch state
func (a *sketchAgg) Deserialize(buf []byte) (skim.Cell, error) {
	sketch, err := ddsketch.DecodeDDSketch(buf, store.DefaultProvider, nil)
	if err != nil {
		return nil, errors.DeserializationError{Reason: err.Error()}
	}
	return &sketchCell{sketch: sketch}, nil
}

// Finalize appends one group's estimates to out: a scalar when one level
// is configured, an array entry otherwise. Empty cells append NaN per
// level, since a sketch has no value to interpolate from.
func (a *sketchAgg) Finalize(cell skim.Cell, out skim.ResultSink) error {
	c, ok := cell.(*sketchCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sketch cell")
	}
	if len(a.levels) == 1 {
		if c.Empty() {
			out.AppendFloat64(math.NaN())
			return nil
		}
		v, err := c.sketch.GetValueAtQuantile(a.levels[0])
		if err != nil {
			return err
		}
		out.AppendFloat64(v)
		return nil
	}
	if c.Empty() {
		vs := make([]float64, len(a.levels))
		for i := range vs {
			vs[i] = math.NaN()
		}
		out.AppendFloats(vs)
		return nil
	}
	vs, err := c.sketch.GetValuesAtQuantiles(a.levels)
	if err != nil {
		return err
	}
	out.AppendFloats(vs)
	return nil
}
