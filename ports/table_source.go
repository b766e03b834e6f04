package ports

import (
	"context"

	"offerctr/domain/table"
)

// TableSourcePort opens chunked cursors over tabular sources. Adapters own
// the pagination mechanics; callers only ever hold one chunk at a time, so
// the loader's memory budget stays enforceable regardless of source size.
type TableSourcePort interface {
	Open(ctx context.Context, req TableRequest) (BatchCursor, error)
}

// TableRequest specifies what to read and how to chunk it
type TableRequest struct {
	// Table names the source relation or file stem
	Table string `json:"table"`

	// Columns projects the read; empty means all columns
	Columns []string `json:"columns,omitempty"`

	// OrderBy names the column chunks are ordered by. Interaction reads
	// must order by the event timestamp so chronology survives chunking.
	OrderBy string `json:"order_by,omitempty"`

	// ChunkRows caps rows per returned batch
	ChunkRows int `json:"chunk_rows"`
}

// BatchCursor walks a source one typed batch at a time. Next returns io.EOF
// after the final batch. Close is idempotent.
type BatchCursor interface {
	Next(ctx context.Context) (*table.Batch, error)
	Close() error
}
