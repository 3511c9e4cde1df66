package skim

// A Cell is the per-group mutable state of one aggregation. A Cell belongs to
// exactly one group key and is owned by exactly one aggregation context at a
// time, so Cells perform no internal locking. Cross-context combination
// happens only through Aggregator.Merge, and only once both operands have
// quiesced. Finalization is a pure read; a finalized Cell may keep accepting
// inserts and merges until its owner discards it.
type Cell interface {
	Seen() uint64 // Seen returns the total number of values ever accumulated into this Cell
	Empty() bool  // Empty returns true iff no value was ever accumulated into this Cell
}

// An Aggregator is a strategy for reducing a stream of grouped column values
// into one summary value (or array) per group. Aggregators hold configuration
// only; all mutable state lives in Cells, so a configured Aggregator may be
// shared read-only across any number of concurrent aggregation contexts. The
// intended call order is Configure, then DeclareResultType to bind the input
// kind, then any number of NewCell/Add/Merge/Serialize/Deserialize calls,
// then Finalize per group. Serialized Cell state is stable across versions,
// for spilling partial aggregates to disk and transferring them between
// nodes.
type Aggregator interface {
	Col() string                                // Col returns the name of the input column this Aggregator reads
	Configure(params []float64) error           // Configure validates and stores the aggregation's level parameters
	DeclareResultType(input Kind) (Kind, error) // DeclareResultType binds the input kind and returns the result kind
	NewCell() (Cell, error)                     // NewCell allocates fresh state for a newly seen group
	Add(cell Cell, col Column, row int) error   // Add accumulates one column value into a Cell
	Merge(cell Cell, other Cell) error          // Merge merges another Cell into this one
	Serialize(cell Cell) ([]byte, error)        // Serialize encodes a Cell's state
	Deserialize(buf []byte) (Cell, error)       // Deserialize produces a new Cell from serialized state
	Finalize(cell Cell, out ResultSink) error   // Finalize appends a Cell's summary value(s) to a result sink
}
