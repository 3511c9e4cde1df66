// Package groupmap tracks per-group aggregate cells, keyed by opaque group
// key bytes. Each Map serves exactly one aggregation; engines that compute
// several aggregations in one pass keep one Map per aggregation.
package groupmap

import (
	"bytes"

	xxhash "github.com/cespare/xxhash/v2"

	"github.com/go-skim/skim"
	errors "github.com/go-skim/skim/errors"
)

// Map owns every cell of one aggregation. Lookups bucket by the 64 bit
// xxhash of the group key and resolve collisions by comparing the full key,
// so distinct keys never share a cell. A Map is not safe for concurrent
// use; give each worker its own and MergeFrom after the workers quiesce.
type Map struct {
	agg     skim.Aggregator
	buckets map[uint64]*entry
	order   []*entry
}

type entry struct {
	hash uint64
	key  []byte
	cell skim.Cell
	next *entry
}

// New returns an empty Map whose cells come from agg
func New(agg skim.Aggregator) *Map {
	return &Map{agg: agg, buckets: make(map[uint64]*entry)}
}

// Len returns the number of distinct groups seen so far
func (m *Map) Len() int { return len(m.order) }

// Cell returns the cell for key, creating one if the key was never seen.
// The key bytes are copied on first sight, so callers may reuse their
// buffer between calls.
func (m *Map) Cell(key []byte) (skim.Cell, error) {
	hash := xxhash.Sum64(key)
	for e := m.buckets[hash]; e != nil; e = e.next {
		if bytes.Equal(e.key, key) {
			return e.cell, nil
		}
	}
	cell, err := m.agg.NewCell()
	if err != nil {
		return nil, err
	}
	m.insert(&entry{hash: hash, key: append([]byte(nil), key...), cell: cell})
	return cell, nil
}

// Lookup returns the cell for key without creating one
func (m *Map) Lookup(key []byte) (skim.Cell, error) {
	hash := xxhash.Sum64(key)
	for e := m.buckets[hash]; e != nil; e = e.next {
		if bytes.Equal(e.key, key) {
			return e.cell, nil
		}
	}
	return nil, errors.NoSuchGroupError{Key: string(key)}
}

// Range calls fn for every group in first-seen order, stopping at the first
// error
func (m *Map) Range(fn func(key []byte, cell skim.Cell) error) error {
	for _, e := range m.order {
		if err := fn(e.key, e.cell); err != nil {
			return err
		}
	}
	return nil
}

// MergeCell merges a detached cell into the group for key, adopting the
// cell outright if the group was never seen. Deserialized spill state
// returns to a Map this way.
func (m *Map) MergeCell(key []byte, cell skim.Cell) error {
	hash := xxhash.Sum64(key)
	for e := m.buckets[hash]; e != nil; e = e.next {
		if bytes.Equal(e.key, key) {
			return m.agg.Merge(e.cell, cell)
		}
	}
	m.insert(&entry{hash: hash, key: append([]byte(nil), key...), cell: cell})
	return nil
}

// MergeFrom merges every group of o into this Map, leaving o empty. Groups
// missing here adopt o's cell directly; groups present on both sides merge
// through the aggregation, with o's cell as the untouched operand.
func (m *Map) MergeFrom(o *Map) error {
	for _, oe := range o.order {
		var ours *entry
		for e := m.buckets[oe.hash]; e != nil; e = e.next {
			if bytes.Equal(e.key, oe.key) {
				ours = e
				break
			}
		}
		if ours == nil {
			m.insert(&entry{hash: oe.hash, key: oe.key, cell: oe.cell})
			continue
		}
		if err := m.agg.Merge(ours.cell, oe.cell); err != nil {
			return err
		}
	}
	o.buckets = make(map[uint64]*entry)
	o.order = nil
	return nil
}

func (m *Map) insert(e *entry) {
	e.next = m.buckets[e.hash]
	m.buckets[e.hash] = e
	m.order = append(m.order, e)
}
