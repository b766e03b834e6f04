package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"

	"offerctr/domain/core"
	"offerctr/domain/table"
	"offerctr/ports"
)

// Config bounds the loader. BudgetBytes caps the resident working set:
// every held auxiliary table plus the chunk in flight, measured after
// downcasting.
type Config struct {
	ChunkRows   int   `json:"chunk_rows" yaml:"chunk_rows"`
	BudgetBytes int64 `json:"budget_bytes" yaml:"budget_bytes"`
}

// Validate checks the bounds are usable
func (c Config) Validate() error {
	if c.ChunkRows <= 0 {
		return fmt.Errorf("chunk_rows must be positive, got %d", c.ChunkRows)
	}
	if c.BudgetBytes <= 0 {
		return fmt.Errorf("budget_bytes must be positive, got %d", c.BudgetBytes)
	}
	return nil
}

// AuxTable wires one dimension table into every streamed chunk
type AuxTable struct {
	Request ports.TableRequest
	Join    table.JoinSpec
}

type auxState struct {
	batch *table.Batch
	join  table.JoinSpec
}

// Loader streams a fact table in bounded chunks, joining held dimension
// tables into each chunk and downcasting everything to its narrowest
// lossless representation. The loader never holds more than one fact chunk;
// dimension tables are held whole, which is what the budget is for.
type Loader struct {
	source    ports.TableSourcePort
	cfg       Config
	aux       []auxState
	heldBytes int64
}

// New builds a loader over a table source
func New(source ports.TableSourcePort, cfg Config) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loader{source: source, cfg: cfg}, nil
}

// HeldBytes reports the resident size of all held dimension tables
func (l *Loader) HeldBytes() int64 {
	return l.heldBytes
}

// LoadAux reads a dimension table completely, downcasts it and holds it for
// joining. The downcast size counts against the budget immediately: a
// dimension table that cannot fit fails here, before any fact rows move.
func (l *Loader) LoadAux(ctx context.Context, aux AuxTable) error {
	req := aux.Request
	if req.ChunkRows <= 0 {
		req.ChunkRows = l.cfg.ChunkRows
	}
	cursor, err := l.source.Open(ctx, req)
	if err != nil {
		return fmt.Errorf("opening %s: %w", req.Table, err)
	}
	defer cursor.Close()

	whole, err := drain(ctx, cursor)
	if err != nil {
		return fmt.Errorf("reading %s: %w", req.Table, err)
	}
	whole = whole.Downcast()

	size := whole.ByteSize()
	if l.heldBytes+size > l.cfg.BudgetBytes {
		return core.NewMemoryBudgetError(l.heldBytes+size, l.cfg.BudgetBytes)
	}

	l.aux = append(l.aux, auxState{batch: whole, join: aux.Join})
	l.heldBytes += size
	return nil
}

// Stream opens the fact table. Each Next call yields one joined, downcast
// chunk; the chunk plus the held tables must fit the budget or the read
// fails with ErrMemoryBudget.
func (l *Loader) Stream(ctx context.Context, req ports.TableRequest) (*Stream, error) {
	if req.ChunkRows <= 0 {
		req.ChunkRows = l.cfg.ChunkRows
	}
	cursor, err := l.source.Open(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", req.Table, err)
	}
	return &Stream{loader: l, cursor: cursor}, nil
}

// Stream walks fact chunks. Next returns io.EOF after the last chunk.
type Stream struct {
	loader *Loader
	cursor ports.BatchCursor
}

// Next yields the next enriched chunk
func (s *Stream) Next(ctx context.Context) (*table.Batch, error) {
	chunk, err := s.cursor.Next(ctx)
	if err != nil {
		return nil, err
	}

	for _, aux := range s.loader.aux {
		chunk, err = table.LeftJoin(chunk, aux.batch, aux.join)
		if err != nil {
			return nil, err
		}
	}
	chunk = chunk.Downcast()

	size := chunk.ByteSize()
	if s.loader.heldBytes+size > s.loader.cfg.BudgetBytes {
		return nil, core.NewMemoryBudgetError(s.loader.heldBytes+size, s.loader.cfg.BudgetBytes)
	}
	return chunk, nil
}

// Close releases the underlying cursor
func (s *Stream) Close() error {
	return s.cursor.Close()
}

// drain reads a cursor to exhaustion and stitches the chunks into one batch
func drain(ctx context.Context, cursor ports.BatchCursor) (*table.Batch, error) {
	var whole *table.Batch
	for {
		chunk, err := cursor.Next(ctx)
		if err != nil {
			if isEOF(err) {
				break
			}
			return nil, err
		}
		if whole == nil {
			whole = chunk
			continue
		}
		whole, err = table.Concat(whole, chunk)
		if err != nil {
			return nil, err
		}
	}
	if whole == nil {
		return nil, fmt.Errorf("source returned no rows")
	}
	return whole, nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
