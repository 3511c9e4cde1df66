// Package jsonl produces aggregation batches from JSON lines data. Group
// keys and column values are pulled out of each row by gjson path, so
// nested fields address naturally (e.g. "tags.host"). Values within the
// JSON which do not correspond to a configured column are ignored.
package jsonl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/tidwall/gjson"

	"github.com/go-skim/skim"
	"github.com/go-skim/skim/engine"
	errors "github.com/go-skim/skim/errors"
)

// SourceConf configures a JSONL Source
type SourceConf struct {
	BatchSize     int                  // The maximum number of rows per batch. Defaults to 128.
	MaxBufferSize int                  // Maximum size in bytes of the buffer used to read lines
	KeyPath       string               // The gjson path of each row's group key
	Cols          map[string]skim.Kind // The gjson path and kind of each aggregated column
}

// Source reads JSON lines and batches them for aggregation
type Source struct {
	conf    *SourceConf
	scanner *bufio.Scanner
	schema  map[string]skim.Kind
	done    bool
}

// NewSource returns a Source reading JSON lines from r
func NewSource(r io.Reader, conf *SourceConf) (*Source, error) {
	if conf.KeyPath == "" {
		return nil, errors.ConfigurationError{Reason: "a group key path is required"}
	}
	if len(conf.Cols) == 0 {
		return nil, errors.ConfigurationError{Reason: "at least one column is required"}
	}
	if conf.BatchSize == 0 {
		conf.BatchSize = 128
	}
	if conf.MaxBufferSize == 0 {
		conf.MaxBufferSize = bufio.MaxScanTokenSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), conf.MaxBufferSize)
	schema := make(map[string]skim.Kind, len(conf.Cols))
	for path, kind := range conf.Cols {
		schema[path] = kind
	}
	return &Source{conf: conf, scanner: scanner, schema: schema}, nil
}

// Schema names every column this Source produces, with its kind
func (s *Source) Schema() map[string]skim.Kind { return s.schema }

// Next parses up to BatchSize rows into a batch, or returns io.EOF once
// the underlying data is exhausted
func (s *Source) Next(ctx context.Context) (*engine.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}
	keys := make([][]byte, 0, s.conf.BatchSize)
	builders := make(map[string]*skim.ColumnBuilder, len(s.conf.Cols))
	for path, kind := range s.conf.Cols {
		builders[path] = skim.NewColumnBuilder(kind)
	}
	for len(keys) < s.conf.BatchSize {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			s.done = true
			break
		}
		rowString := s.scanner.Text()
		parsed := gjson.Parse(rowString)
		key := parsed.Get(s.conf.KeyPath)
		if !key.Exists() {
			log.Printf("Unable to parse line:\n\t%s", rowString)
			return nil, fmt.Errorf("Row has no value at key path %s", s.conf.KeyPath)
		}
		for path := range s.conf.Cols {
			val := parsed.Get(path)
			if val.Type != gjson.Number {
				log.Printf("Unable to parse line:\n\t%s", rowString)
				return nil, fmt.Errorf("Column %s was not a number. Was: %#v", path, val.Value())
			}
			builders[path].AppendFloat64(val.Float())
		}
		keys = append(keys, []byte(key.String()))
	}
	if len(keys) == 0 {
		return nil, io.EOF
	}
	cols := make(map[string]skim.Column, len(builders))
	for path, builder := range builders {
		col, err := builder.Build()
		if err != nil {
			return nil, err
		}
		cols[path] = col
	}
	return &engine.Batch{Keys: keys, Cols: cols}, nil
}
