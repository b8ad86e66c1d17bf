package store

import (
	"context"
	"testing"

	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/model"
)

func TestMemStore_PutBatchAndCount(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	chunks, err := s.PutBatch(ctx, "policy-a", []model.NewChunk{
		{Text: "one", Kind: model.KindGeneral, Embedding: []float32{1, 0}},
		{Text: "two", Kind: model.KindGeneral, Embedding: []float32{0, 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 || chunks[0].ID == "" {
		t.Fatalf("expected 2 chunks with assigned ids, got %+v", chunks)
	}
	n, err := s.Count(ctx, "policy-a")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected count 2, got %d", n)
	}
}

func TestMemStore_DeletePolicyRemovesAll(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	s.PutBatch(ctx, "policy-a", []model.NewChunk{{Text: "one", Kind: model.KindGeneral, Embedding: []float32{1}}})
	if err := s.DeletePolicy(ctx, "policy-a"); err != nil {
		t.Fatal(err)
	}
	n, _ := s.Count(ctx, "policy-a")
	if n != 0 {
		t.Fatalf("expected 0 chunks after delete, got %d", n)
	}
}

func TestMemStore_SimilarOrdersByScoreThenPosition(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	s.PutBatch(ctx, "policy-a", []model.NewChunk{
		{Text: "far", Position: 0, Kind: model.KindGeneral, Embedding: []float32{0, 1}},
		{Text: "near", Position: 1, Kind: model.KindGeneral, Embedding: []float32{1, 0}},
	})
	results, err := s.Similar(ctx, "policy-a", []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.Text != "near" {
		t.Fatalf("expected closest vector first, got %q", results[0].Chunk.Text)
	}

	s.PutBatch(ctx, "policy-b", []model.NewChunk{
		{Text: "tie-later", Position: 5, Kind: model.KindGeneral, Embedding: []float32{1, 0}},
		{Text: "tie-earlier", Position: 3, Kind: model.KindGeneral, Embedding: []float32{1, 0}},
	})
	ties, err := s.Similar(ctx, "policy-b", []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(ties) != 2 || ties[0].Chunk.Text != "tie-earlier" {
		t.Fatalf("expected equal scores to be ordered by position, got %+v", ties)
	}
}

func TestMemStore_SimilarAppliesKindFilter(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	s.PutBatch(ctx, "policy-a", []model.NewChunk{
		{Text: "excl", Kind: model.KindExclusion, Embedding: []float32{1, 0}},
		{Text: "incl", Kind: model.KindInclusion, Embedding: []float32{1, 0}},
	})
	results, err := s.Similar(ctx, "policy-a", []float32{1, 0}, 10, []model.Kind{model.KindExclusion})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.Kind != model.KindExclusion {
		t.Fatalf("expected only EXCLUSION chunk, got %+v", results)
	}
}

func TestMemStore_SimilarIsolatesPolicies(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	s.PutBatch(ctx, "policy-a", []model.NewChunk{{Text: "a", Kind: model.KindGeneral, Embedding: []float32{1, 0}}})
	s.PutBatch(ctx, "policy-b", []model.NewChunk{{Text: "b", Kind: model.KindGeneral, Embedding: []float32{1, 0}}})

	results, err := s.Similar(ctx, "policy-a", []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "a" {
		t.Fatalf("expected only policy-a's chunk, got %+v", results)
	}
}

func TestMemStore_FetchUnknownChunkIsNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Fetch(context.Background(), "policy-a", "missing")
	ce, ok := coverageerr.As(err)
	if !ok || ce.Code() != coverageerr.CodeChunkNotFound {
		t.Fatalf("expected ChunkNotFound, got %v", err)
	}
}

func TestMemStore_PutBatchRejectsConcurrentIngestForSamePolicy(t *testing.T) {
	s := NewMemStore()
	s.mu.Lock()
	s.ingest["policy-a"] = true
	s.mu.Unlock()

	_, err := s.PutBatch(context.Background(), "policy-a", []model.NewChunk{{Text: "x", Embedding: []float32{1}}})
	ce, ok := coverageerr.As(err)
	if !ok || ce.Code() != coverageerr.CodeStoreConflict {
		t.Fatalf("expected StoreConflict, got %v", err)
	}
}
