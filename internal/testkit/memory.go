package testkit

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"offerctr/domain/core"
	"offerctr/domain/ensemble"
	"offerctr/domain/table"
	"offerctr/ports"
)

// InMemorySource serves pre-built batches through the table source port.
// Open honors column projection, OrderBy and chunking the same way the
// warehouse sources do.
type InMemorySource struct {
	mu     sync.RWMutex
	tables map[string]*table.Batch
}

// NewInMemorySource creates an empty source
func NewInMemorySource() *InMemorySource {
	return &InMemorySource{tables: make(map[string]*table.Batch)}
}

// AddTable registers a batch under a table name
func (s *InMemorySource) AddTable(name string, batch *table.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = batch
}

// AddDataset registers all three generated tables under their default names
func (s *InMemorySource) AddDataset(ds *Dataset) {
	s.AddTable("interactions", ds.Interactions)
	s.AddTable("offers", ds.Offers)
	s.AddTable("transactions", ds.Transactions)
}

func (s *InMemorySource) Open(ctx context.Context, req ports.TableRequest) (ports.BatchCursor, error) {
	s.mu.RLock()
	batch, ok := s.tables[req.Table]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: table %s", core.ErrNotFound, req.Table)
	}

	if req.OrderBy != "" {
		ordered, err := sortByColumn(batch, req.OrderBy)
		if err != nil {
			return nil, err
		}
		batch = ordered
	}
	if len(req.Columns) > 0 {
		projected, err := projectColumns(batch, req.Columns)
		if err != nil {
			return nil, err
		}
		batch = projected
	}

	chunk := req.ChunkRows
	if chunk <= 0 {
		chunk = batch.Rows()
	}
	return &memoryCursor{batch: batch, chunk: chunk}, nil
}

type memoryCursor struct {
	batch  *table.Batch
	chunk  int
	offset int
}

func (c *memoryCursor) Next(ctx context.Context) (*table.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.offset >= c.batch.Rows() {
		return nil, io.EOF
	}
	end := c.offset + c.chunk
	if end > c.batch.Rows() {
		end = c.batch.Rows()
	}
	indices := make([]int, 0, end-c.offset)
	for i := c.offset; i < end; i++ {
		indices = append(indices, i)
	}
	c.offset = end
	return c.batch.Gather(indices), nil
}

func (c *memoryCursor) Close() error { return nil }

func sortByColumn(batch *table.Batch, name string) (*table.Batch, error) {
	col, ok := batch.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: order column %s", core.ErrNotFound, name)
	}
	indices := make([]int, batch.Rows())
	for i := range indices {
		indices[i] = i
	}
	switch col.Kind.Family() {
	case table.TimestampFamily:
		sort.SliceStable(indices, func(a, b int) bool {
			return col.TimeAt(indices[a]).Before(col.TimeAt(indices[b]))
		})
	case table.IntegerFamily:
		sort.SliceStable(indices, func(a, b int) bool {
			return col.IntAt(indices[a]) < col.IntAt(indices[b])
		})
	case table.FloatFamily:
		sort.SliceStable(indices, func(a, b int) bool {
			return col.Float64At(indices[a]) < col.Float64At(indices[b])
		})
	default:
		sort.SliceStable(indices, func(a, b int) bool {
			return col.StringAt(indices[a]) < col.StringAt(indices[b])
		})
	}
	return batch.Gather(indices), nil
}

func projectColumns(batch *table.Batch, names []string) (*table.Batch, error) {
	cols := make([]table.Column, 0, len(names))
	for _, name := range names {
		col, ok := batch.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: column %s", core.ErrNotFound, name)
		}
		cols = append(cols, *col)
	}
	return table.NewBatch(cols...)
}

// InMemoryRejectSink collects rejected records per run
type InMemoryRejectSink struct {
	mu      sync.Mutex
	Rejects map[core.RunID][]core.RejectedRecord
}

func NewInMemoryRejectSink() *InMemoryRejectSink {
	return &InMemoryRejectSink{Rejects: make(map[core.RunID][]core.RejectedRecord)}
}

func (s *InMemoryRejectSink) WriteRejects(ctx context.Context, runID core.RunID, rejects []core.RejectedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rejects[runID] = append(s.Rejects[runID], rejects...)
	return nil
}

// Count returns how many rejects a run accumulated
func (s *InMemoryRejectSink) Count(runID core.RunID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Rejects[runID])
}

// InMemoryPredictionSink collects scored records per run
type InMemoryPredictionSink struct {
	mu          sync.Mutex
	Predictions map[core.RunID][]ensemble.Prediction
}

func NewInMemoryPredictionSink() *InMemoryPredictionSink {
	return &InMemoryPredictionSink{Predictions: make(map[core.RunID][]ensemble.Prediction)}
}

func (s *InMemoryPredictionSink) WritePredictions(ctx context.Context, runID core.RunID, predictions []ensemble.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Predictions[runID] = append(s.Predictions[runID], predictions...)
	return nil
}

// For returns a copy of the predictions recorded for a run
func (s *InMemoryPredictionSink) For(runID core.RunID) []ensemble.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ensemble.Prediction{}, s.Predictions[runID]...)
}

// InMemoryRunStore keeps run manifests in a map
type InMemoryRunStore struct {
	mu        sync.Mutex
	manifests map[core.RunID]ports.RunManifest
}

func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{manifests: make(map[core.RunID]ports.RunManifest)}
}

func (s *InMemoryRunStore) SaveManifest(ctx context.Context, manifest ports.RunManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[manifest.RunID] = manifest
	return nil
}

func (s *InMemoryRunStore) UpdateManifest(ctx context.Context, manifest ports.RunManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.manifests[manifest.RunID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, manifest.RunID)
	}
	s.manifests[manifest.RunID] = manifest
	return nil
}

func (s *InMemoryRunStore) GetManifest(ctx context.Context, runID core.RunID) (*ports.RunManifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	manifest, ok := s.manifests[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return &manifest, nil
}

// All returns every stored manifest in unspecified order
func (s *InMemoryRunStore) All() []ports.RunManifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.RunManifest, 0, len(s.manifests))
	for _, m := range s.manifests {
		out = append(out, m)
	}
	return out
}

// InMemorySnapshotStore keeps statistic snapshots in a map
type InMemorySnapshotStore struct {
	mu      sync.Mutex
	bundles map[string]ports.SnapshotBundle
}

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{bundles: make(map[string]ports.SnapshotBundle)}
}

func (s *InMemorySnapshotStore) Save(ctx context.Context, name string, bundle ports.SnapshotBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[name] = bundle
	return nil
}

func (s *InMemorySnapshotStore) Load(ctx context.Context, name string) (*ports.SnapshotBundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bundle, ok := s.bundles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSnapshotNotFound, name)
	}
	return &bundle, nil
}
