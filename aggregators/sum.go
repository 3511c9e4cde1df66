package aggregators

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
)

// Sum returns an aggregation summing each group's values. Values
// accumulate as float64 whatever the input kind, so the result kind is
// always Float64. An empty group sums to zero.
func Sum(colName string) (skim.Aggregator, error) {
	return &sumAgg{colName: colName}, nil
}

type sumAgg struct {
	colName string
	bound   bool
	in      skim.Kind
}

// sumCell sums values
type sumCell struct {
	sum  float64
	rows uint64
}

// Seen returns the number of values summed into this cell
func (c *sumCell) Seen() uint64 { return c.rows }

// Empty returns true iff no value was ever summed into this cell
func (c *sumCell) Empty() bool { return c.rows == 0 }

// Col returns the name of the input column this aggregation reads
func (a *sumAgg) Col() string { return a.colName }

// Configure rejects any parameters, since summing takes none
func (a *sumAgg) Configure(params []float64) error {
	if len(params) > 0 {
		return errors.ParameterCountError{Function: "sum", Min: 0, Max: 0, Actual: len(params)}
	}
	return nil
}

// DeclareResultType binds the aggregation to its input kind and returns
// Float64
func (a *sumAgg) DeclareResultType(input skim.Kind) (skim.Kind, error) {
	if input > skim.DateTime {
		return 0, errors.IncompatibleKindError{Expected: "a numeric kind", Actual: input.String()}
	}
	a.in = input
	a.bound = true
	return skim.Float64, nil
}

// NewCell allocates an empty sum cell for a newly seen group
func (a *sumAgg) NewCell() (skim.Cell, error) {
	return new(sumCell), nil
}

// Add accumulates the row'th value of col into a cell
func (a *sumAgg) Add(cell skim.Cell, col skim.Column, row int) error {
	if !a.bound || col.Kind() != a.in {
		return errors.IncompatibleKindError{Expected: a.in.String(), Actual: col.Kind().String()}
	}
	c, ok := cell.(*sumCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sum cell")
	}
	c.sum += col.Float64At(row)
	c.rows++
	return nil
}

// Merge merges another cell into cell, leaving other untouched
func (a *sumAgg) Merge(cell skim.Cell, other skim.Cell) error {
	c, ok := cell.(*sumCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sum cell")
	}
	oc, ok := other.(*sumCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sum cell")
	}
	c.sum += oc.sum
	c.rows += oc.rows
	return nil
}

// Serialize encodes a cell's sum and row count
func (a *sumAgg) Serialize(cell skim.Cell) ([]byte, error) {
	c, ok := cell.(*sumCell)
	if !ok {
		return nil, fmt.Errorf("Incoming cell is not a sum cell")
	}
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(c.sum))
	binary.LittleEndian.PutUint64(buf[8:], c.rows)
	return buf, nil
}

// Deserialize produces a new cell from a serialized sum
func (a *sumAgg) Deserialize(buf []byte) (skim.Cell, error) {
	if len(buf) != 16 {
		return nil, errors.DeserializationError{Reason: fmt.Sprintf("sum state is %d bytes, want 16", len(buf))}
	}
	return &sumCell{
		sum:  math.Float64frombits(binary.LittleEndian.Uint64(buf)),
		rows: binary.LittleEndian.Uint64(buf[8:]),
	}, nil
}

// Finalize appends one group's sum to out
func (a *sumAgg) Finalize(cell skim.Cell, out skim.ResultSink) error {
	c, ok := cell.(*sumCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a sum cell")
	}
	out.AppendFloat64(c.sum)
	return nil
}
