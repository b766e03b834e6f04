package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"offerctr/ports"
)

// fakeConnector serves canned rows through database/sql so cursor chunking
// can be exercised without a live server.
type fakeConnector struct {
	cols    []string
	types   []string
	data    [][]driver.Value
	queries []string
}

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) { return &fakeConn{c: c}, nil }
func (c *fakeConnector) Driver() driver.Driver                        { return fakeDrv{} }

type fakeDrv struct{}

func (fakeDrv) Open(string) (driver.Conn, error) { return nil, errors.New("use the connector") }

type fakeConn struct{ c *fakeConnector }

func (fc *fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (fc *fakeConn) Close() error                        { return nil }
func (fc *fakeConn) Begin() (driver.Tx, error)           { return nil, errors.New("not supported") }

func (fc *fakeConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	fc.c.queries = append(fc.c.queries, query)
	return &fakeRows{c: fc.c}, nil
}

type fakeRows struct {
	c   *fakeConnector
	row int
}

func (r *fakeRows) Columns() []string                       { return r.c.cols }
func (r *fakeRows) Close() error                            { return nil }
func (r *fakeRows) ColumnTypeDatabaseTypeName(i int) string { return r.c.types[i] }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.row >= len(r.c.data) {
		return io.EOF
	}
	copy(dest, r.c.data[r.row])
	r.row++
	return nil
}

// tiedDB holds five interactions where a three-row timestamp tie straddles
// the chunk boundary at chunk size two.
func tiedDB() (*sqlx.DB, *fakeConnector) {
	tie := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	connector := &fakeConnector{
		cols:  []string{"record_id", "event_ts"},
		types: []string{"TEXT", "TIMESTAMPTZ"},
		data: [][]driver.Value{
			{"r1", tie.Add(-time.Hour)},
			{"r2", tie},
			{"r3", tie},
			{"r4", tie},
			{"r5", tie.Add(time.Hour)},
		},
	}
	return sqlx.NewDb(sql.OpenDB(connector), "postgres"), connector
}

// TestCursorDeliversTiedRowsExactlyOnce tests that chunking never repeats or
// drops rows whose order column ties across a chunk boundary: the whole read
// must be one query execution, not a LIMIT/OFFSET re-execution per chunk.
func TestCursorDeliversTiedRowsExactlyOnce(t *testing.T) {
	db, connector := tiedDB()
	defer db.Close()

	source := NewTableSource(db)
	cursor, err := source.Open(context.Background(), ports.TableRequest{
		Table:     "interactions",
		OrderBy:   "event_ts",
		ChunkRows: 2,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cursor.Close()

	var ids []string
	var sizes []int
	for {
		batch, err := cursor.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		sizes = append(sizes, batch.Rows())
		col, ok := batch.Column("record_id")
		if !ok {
			t.Fatal("record_id column missing from batch")
		}
		for i := 0; i < batch.Rows(); i++ {
			ids = append(ids, col.StringAt(i))
		}
	}

	want := []string{"r1", "r2", "r3", "r4", "r5"}
	if len(ids) != len(want) {
		t.Fatalf("got %d rows %v, want %d", len(ids), ids, len(want))
	}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("row %d = %s, want %s", i, ids[i], id)
		}
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("chunk sizes = %v, want [2 2 1]", sizes)
	}

	if len(connector.queries) != 1 {
		t.Errorf("executed %d queries %v, want a single execution", len(connector.queries), connector.queries)
	}
	for _, q := range connector.queries {
		if strings.Contains(q, "OFFSET") {
			t.Errorf("query pages by OFFSET, tied rows can repeat or vanish: %s", q)
		}
	}
}

// TestCursorEOFAfterExactMultiple tests the boundary where the row count is
// a multiple of the chunk size
func TestCursorEOFAfterExactMultiple(t *testing.T) {
	db, _ := tiedDB()
	defer db.Close()

	cursor, err := NewTableSource(db).Open(context.Background(), ports.TableRequest{
		Table:     "interactions",
		OrderBy:   "event_ts",
		ChunkRows: 5,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cursor.Close()

	batch, err := cursor.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if batch.Rows() != 5 {
		t.Errorf("batch rows = %d, want 5", batch.Rows())
	}
	if _, err := cursor.Next(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF after final chunk, got %v", err)
	}
	if _, err := cursor.Next(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF to persist, got %v", err)
	}
}

// TestOpenValidation tests request validation
func TestOpenValidation(t *testing.T) {
	db, _ := tiedDB()
	defer db.Close()
	source := NewTableSource(db)

	if _, err := source.Open(context.Background(), ports.TableRequest{ChunkRows: 10}); err == nil {
		t.Error("expected an error for a missing table name")
	}
	if _, err := source.Open(context.Background(), ports.TableRequest{Table: "interactions"}); err == nil {
		t.Error("expected an error for non-positive chunk rows")
	}
}
