package aggregators

import (
	"encoding/binary"
	"fmt"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
)

// Count returns an aggregation counting each group's rows. The input
// column's values are never read, so any scalar kind is accepted, and the
// result kind is Uint64.
func Count(colName string) (skim.Aggregator, error) {
	return &countAgg{colName: colName}, nil
}

type countAgg struct {
	colName string
}

// countCell counts rows
type countCell struct {
	count uint64
}

// Seen returns the number of rows counted into this cell
func (c *countCell) Seen() uint64 { return c.count }

// Empty returns true iff no row was ever counted into this cell
func (c *countCell) Empty() bool { return c.count == 0 }

// Col returns the name of the input column this aggregation reads
func (a *countAgg) Col() string { return a.colName }

// Configure rejects any parameters, since counting takes none
func (a *countAgg) Configure(params []float64) error {
	if len(params) > 0 {
		return errors.ParameterCountError{Function: "count", Min: 0, Max: 0, Actual: len(params)}
	}
	return nil
}

// DeclareResultType accepts any input kind and returns Uint64
func (a *countAgg) DeclareResultType(input skim.Kind) (skim.Kind, error) {
	if input > skim.DateTime {
		return 0, errors.IncompatibleKindError{Expected: "a numeric kind", Actual: input.String()}
	}
	return skim.Uint64, nil
}

// NewCell allocates an empty count cell for a newly seen group
func (a *countAgg) NewCell() (skim.Cell, error) {
	return new(countCell), nil
}

// Add counts the row'th value of col into a cell
func (a *countAgg) Add(cell skim.Cell, col skim.Column, row int) error {
	c, ok := cell.(*countCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a count cell")
	}
	c.count++
	return nil
}

// Merge merges another cell into cell, leaving other untouched
func (a *countAgg) Merge(cell skim.Cell, other skim.Cell) error {
	c, ok := cell.(*countCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a count cell")
	}
	oc, ok := other.(*countCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a count cell")
	}
	c.count += oc.count
	return nil
}

// Serialize encodes a cell's count
func (a *countAgg) Serialize(cell skim.Cell) ([]byte, error) {
	c, ok := cell.(*countCell)
	if !ok {
		return nil, fmt.Errorf("Incoming cell is not a count cell")
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, c.count)
	return buf, nil
}

// Deserialize produces a new cell from a serialized count
func (a *countAgg) Deserialize(buf []byte) (skim.Cell, error) {
	if len(buf) != 8 {
		return nil, errors.DeserializationError{Reason: fmt.Sprintf("count state is %d bytes, want 8", len(buf))}
	}
	return &countCell{count: binary.LittleEndian.Uint64(buf)}, nil
}

// Finalize appends one group's row count to out
func (a *countAgg) Finalize(cell skim.Cell, out skim.ResultSink) error {
	c, ok := cell.(*countCell)
	if !ok {
		return fmt.Errorf("Incoming cell is not a count cell")
	}
	out.AppendFloat64(float64(c.count))
	return nil
}
