package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/insurai/coverage-guardrail/internal/chunker"
	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/embedding"
	"github.com/insurai/coverage-guardrail/internal/extractor"
	"github.com/insurai/coverage-guardrail/internal/model"
	"github.com/insurai/coverage-guardrail/internal/store"
)

func newPipeline(st store.ChunkStore, dims int) *Pipeline {
	ex := extractor.New(nil)
	cl := chunker.New(nil)
	emb := embedding.NewNullEmbedder(dims)
	return New(ex, chunker.DefaultConfig(), cl, emb, st)
}

func TestPipeline_RunProducesChunks(t *testing.T) {
	st := store.NewMemStore()
	p := newPipeline(st, 8)

	pages := []extractor.PageSource{
		{PageNumber: 1, NativeText: "EXCLUSIONS: We do not insure flood damage to the vehicle.", NativeCoverage: 1},
		{PageNumber: 2, NativeText: "Coverage includes windshield repair up to the policy limit.", NativeCoverage: 1},
	}

	res, err := p.Run(context.Background(), "policy-1", "doc-1", pages)
	if err != nil {
		t.Fatal(err)
	}
	if res.ChunkCount == 0 {
		t.Fatal("expected at least one stored chunk")
	}
	if res.Pages != 2 {
		t.Fatalf("expected Pages=2, got %d", res.Pages)
	}

	count, err := st.Count(context.Background(), "policy-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != res.ChunkCount {
		t.Fatalf("store count %d does not match reported ChunkCount %d", count, res.ChunkCount)
	}
}

func TestPipeline_RunContinuesAfterExtractionFailure(t *testing.T) {
	st := store.NewMemStore()
	p := newPipeline(st, 8)

	var failed []*coverageerr.Error
	p.OnExtractionFailed(func(e *coverageerr.Error) { failed = append(failed, e) })

	pages := []extractor.PageSource{
		{PageNumber: 1, NativeText: "Coverage includes roof repair.", NativeCoverage: 1},
		{PageNumber: 2, NativeCoverage: 0, ImageBytes: nil}, // no native text, no OCR backend wired
	}

	res, err := p.Run(context.Background(), "policy-2", "doc-2", pages)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) == 0 {
		t.Fatal("expected the unreadable page to report an extraction failure")
	}
	if res.ChunkCount == 0 {
		t.Fatal("expected the readable page to still be ingested")
	}
}

func TestPipeline_RunFailsOnEmbeddingDimensionMismatch(t *testing.T) {
	st := store.NewMemStore()
	ex := extractor.New(nil)
	cl := chunker.New(nil)
	p := New(ex, chunker.DefaultConfig(), cl, mismatchedEmbedder{want: 8, got: 4}, st)

	pages := []extractor.PageSource{
		{PageNumber: 1, NativeText: "Coverage includes brake pads.", NativeCoverage: 1},
	}

	_, err := p.Run(context.Background(), "policy-3", "doc-3", pages)
	if err == nil {
		t.Fatal("expected an error")
	}
	ce, ok := coverageerr.As(err)
	if !ok || ce.Code() != coverageerr.CodeEmbeddingDimMismatch {
		t.Fatalf("expected EmbeddingDimensionMismatch, got %v", err)
	}
}

func TestPipeline_RunInvokesClassifyErrorCallbackWithoutAborting(t *testing.T) {
	st := store.NewMemStore()
	ex := extractor.New(nil)
	cl := chunker.New(failingRefiner{})
	p := New(ex, chunker.DefaultConfig(), cl, embedding.NewNullEmbedder(8), st)

	var classifyErrs int
	p.OnClassifyError(func(error) { classifyErrs++ })

	pages := []extractor.PageSource{
		{PageNumber: 1, NativeText: "EXCLUSIONS: flood damage is excluded from coverage.", NativeCoverage: 1},
	}

	res, err := p.Run(context.Background(), "policy-4", "doc-4", pages)
	if err != nil {
		t.Fatal(err)
	}
	if classifyErrs == 0 {
		t.Fatal("expected the refiner failure to invoke the classify-error callback")
	}
	if res.ChunkCount == 0 {
		t.Fatal("expected the chunk to still be stored under its heuristic prior kind")
	}
}

func TestPipeline_RunNoBlocksProducesEmptyResult(t *testing.T) {
	st := store.NewMemStore()
	p := newPipeline(st, 8)

	res, err := p.Run(context.Background(), "policy-5", "doc-5", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.ChunkCount != 0 {
		t.Fatalf("expected zero chunks for an empty page set, got %d", res.ChunkCount)
	}
}

// mismatchedEmbedder always returns vectors shorter than Dimensions(),
// exercising the pipeline's dimension-mismatch guard.
type mismatchedEmbedder struct{ want, got int }

func (m mismatchedEmbedder) Dimensions() int { return m.want }
func (m mismatchedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, m.got), nil
}
func (m mismatchedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, m.got)
	}
	return out, nil
}

// failingRefiner always errors, standing in for a provider that is down.
type failingRefiner struct{}

func (failingRefiner) ClassifyChunk(ctx context.Context, text, heading string) (model.Kind, error) {
	return "", errors.New("refiner unavailable")
}
