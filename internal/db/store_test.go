package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/weison-t/thereader/internal/models"
)

func s(v string) *string { return &v }

func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := New(context.Background(), url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return store
}

func TestTableMissingError(t *testing.T) {
	err := Missing("data_snapshot")
	if !errors.Is(err, ErrTableMissing) {
		t.Fatalf("expected errors.Is to match ErrTableMissing")
	}
	if err.Error() != "data_snapshot missing" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestProjectKeepsSchemaOrder(t *testing.T) {
	cols := []string{"id", "agent", "content", "rating"}
	got := project(cols, []string{"rating", "agent", "missing"})
	if len(got) != 2 || got[0] != "agent" || got[1] != "rating" {
		t.Fatalf("expected [agent rating], got %v", got)
	}
	if all := project(cols, nil); len(all) != len(cols) {
		t.Fatalf("expected every column without a projection, got %v", all)
	}
}

func TestReplaceTableIntegration(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	name := "it_replace_table"
	defer func() { _ = store.DropDataset(ctx, name) }()

	spec := TableSpec{
		Name:    name,
		Columns: []models.ColumnDef{{Name: "id"}, {Name: "select"}, {Name: "note"}},
		RowID:   true,
		Source:  name + "/1_x.csv",
	}
	n, err := store.ReplaceTable(ctx, spec, [][]*string{{s("1"), s("a"), nil}, {s("2"), s("it's"), s("x")}})
	if err != nil || n != 2 {
		t.Fatalf("expected 2 rows copied, got %d, %v", n, err)
	}

	tbl, ok, err := store.LoadTable(ctx, name, Select{OrderBy: []Order{{Column: models.RowIDColumn}}})
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(tbl.Columns) != 4 || tbl.Columns[0] != models.RowIDColumn {
		t.Fatalf("unexpected columns %v", tbl.Columns)
	}
	if v := tbl.Value(tbl.Rows[1], "select"); v == nil || *v != "it's" {
		t.Fatalf("expected quoted value to survive, got %v", v)
	}
	if v := tbl.Value(tbl.Rows[0], "note"); v != nil {
		t.Fatalf("expected NULL note, got %v", *v)
	}

	n, err = store.ReplaceTable(ctx, spec, [][]*string{{s("9"), s("z"), s("z")}})
	if err != nil || n != 1 {
		t.Fatalf("expected replacement with 1 row, got %d, %v", n, err)
	}
	p, err := store.Preview(ctx, name, 50)
	if err != nil || !p.Exists || p.Total != 1 {
		t.Fatalf("unexpected preview %+v, %v", p, err)
	}
}

func TestPreviewMissingTable(t *testing.T) {
	store := testStore(t)
	p, err := store.Preview(context.Background(), "it_never_created", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Exists || len(p.Rows) != 0 {
		t.Fatalf("expected exists=false, got %+v", p)
	}
}

func TestUpsertResultIntegration(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	if err := store.TruncateResults(ctx); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	r := models.ScoringResult{
		ID:           "2b1f3c3e-6d9a-4a52-9f58-1f1f6b0c0a01",
		SourceKey:    "k1",
		SamplingID:   s("chat-1"),
		Thoroughness: "80/100 - ok",
		FinalScore:   16,
		CreatedAt:    time.Now().UTC(),
	}
	if err := store.UpsertResult(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r.ID = "2b1f3c3e-6d9a-4a52-9f58-1f1f6b0c0a02"
	r.FinalScore = 42
	if err := store.UpsertResult(ctx, r); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, total, err := store.ListResults(ctx, 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || rows[0].FinalScore != 42 {
		t.Fatalf("expected one overwritten result, got total=%d rows=%+v", total, rows)
	}
}
