package memory

import (
	"context"
	"testing"

	"github.com/mirrorpanel/mirrorpanel-backend/internal/vecstore"
)

func newStore(t *testing.T, dim int) *Store {
	t.Helper()
	s, err := New(nil, dim)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func rec(id string, vec []float32, meta map[string]any) vecstore.Record {
	return vecstore.Record{ID: id, StudyID: "study-1", Vector: vec, Metadata: meta}
}

func TestUpsertIsIdempotentById(t *testing.T) {
	s := newStore(t, 3)
	ctx := context.Background()

	if err := s.Upsert(ctx, []vecstore.Record{rec("m-1", []float32{1, 0, 0}, map[string]any{"v": 1})}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, []vecstore.Record{rec("m-1", []float32{0, 1, 0}, map[string]any{"v": 2})}); err != nil {
		t.Fatalf("Upsert overwrite: %v", err)
	}

	matches, err := s.SearchExact(ctx, []float32{0, 1, 0}, nil, 10)
	if err != nil {
		t.Fatalf("SearchExact: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("stored rows: want=1 got=%d", len(matches))
	}
	if matches[0].Metadata["v"] != 2 {
		t.Fatalf("latest write must win: got=%v", matches[0].Metadata["v"])
	}
	if matches[0].Score < 0.999 {
		t.Fatalf("latest vector must be stored: score=%v", matches[0].Score)
	}
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	s := newStore(t, 3)
	err := s.Upsert(context.Background(), []vecstore.Record{rec("m-1", []float32{1, 2}, nil)})
	if vecstore.CodeOf(err) != vecstore.OperationErrorDimensionMismatch {
		t.Fatalf("expected dimension_mismatch, got %v", err)
	}
}

func TestQueryRejectsNonPositiveTopK(t *testing.T) {
	s := newStore(t, 3)
	_, err := s.Query(context.Background(), []float32{1, 0, 0}, nil, 0)
	if vecstore.CodeOf(err) != vecstore.OperationErrorInvalidArgument {
		t.Fatalf("expected invalid_argument, got %v", err)
	}
}

func TestQueryServesStaleSnapshotUntilRebuild(t *testing.T) {
	s := newStore(t, 3)
	ctx := context.Background()

	if err := s.Upsert(ctx, []vecstore.Record{rec("m-1", []float32{1, 0, 0}, nil)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := s.Upsert(ctx, []vecstore.Record{rec("m-2", []float32{0.9, 0.1, 0}, nil)}); err != nil {
		t.Fatalf("Upsert post-rebuild: %v", err)
	}

	ann, err := s.Query(ctx, []float32{1, 0, 0}, nil, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(ann) != 1 || ann[0].ID != "m-1" {
		t.Fatalf("approximate path must serve last snapshot: got=%v", ann)
	}

	exact, err := s.SearchExact(ctx, []float32{1, 0, 0}, nil, 10)
	if err != nil {
		t.Fatalf("SearchExact: %v", err)
	}
	if len(exact) != 2 {
		t.Fatalf("exact path must see live rows: want=2 got=%d", len(exact))
	}

	if err := s.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	ann, err = s.Query(ctx, []float32{1, 0, 0}, nil, 10)
	if err != nil {
		t.Fatalf("Query after rebuild: %v", err)
	}
	if len(ann) != 2 {
		t.Fatalf("rebuild must refresh snapshot: want=2 got=%d", len(ann))
	}
}

func TestQueryOrdersByScoreThenIdAscending(t *testing.T) {
	s := newStore(t, 3)
	ctx := context.Background()

	if err := s.Upsert(ctx, []vecstore.Record{
		rec("m-b", []float32{1, 0, 0}, nil),
		rec("m-a", []float32{1, 0, 0}, nil),
		rec("m-c", []float32{0, 1, 0}, nil),
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := s.SearchExact(ctx, []float32{1, 0, 0}, nil, 3)
	if err != nil {
		t.Fatalf("SearchExact: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("matches: want=3 got=%d", len(matches))
	}
	if matches[0].ID != "m-a" || matches[1].ID != "m-b" {
		t.Fatalf("equal scores must break ties by ascending id: got=%v", []string{matches[0].ID, matches[1].ID})
	}
	if matches[2].ID != "m-c" {
		t.Fatalf("lowest score must come last: got=%s", matches[2].ID)
	}
}

func TestQueryAppliesFilterConjunction(t *testing.T) {
	s := newStore(t, 3)
	ctx := context.Background()

	if err := s.Upsert(ctx, []vecstore.Record{
		rec("m-1", []float32{1, 0, 0}, map[string]any{"session_id": "s-1", "sentiment": 0.8}),
		rec("m-2", []float32{1, 0, 0}, map[string]any{"session_id": "s-1", "sentiment": -0.6}),
		rec("m-3", []float32{1, 0, 0}, map[string]any{"session_id": "s-2", "sentiment": 0.9}),
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := s.SearchExact(ctx, []float32{1, 0, 0}, map[string]any{
		"session_id": "s-1",
		"sentiment":  map[string]any{"$gte": 0.0},
	}, 10)
	if err != nil {
		t.Fatalf("SearchExact: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "m-1" {
		t.Fatalf("filter conjunction mismatch: got=%v", matches)
	}
}

func TestZeroVectorSentinelRanksLast(t *testing.T) {
	s := newStore(t, 3)
	ctx := context.Background()

	if err := s.Upsert(ctx, []vecstore.Record{
		rec("m-blank", vecstore.ZeroVector(3), nil),
		rec("m-real", []float32{1, 0, 0}, nil),
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := s.SearchExact(ctx, []float32{1, 0, 0}, nil, 10)
	if err != nil {
		t.Fatalf("SearchExact: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches: want=2 got=%d", len(matches))
	}
	if matches[0].ID != "m-real" || matches[1].Score != 0 {
		t.Fatalf("sentinel must score 0 and rank last: got=%v", matches)
	}
}
