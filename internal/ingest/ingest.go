// Package ingest wires the extractor, chunker, classifier and embedder
// into the pipeline that turns raw policy pages into stored chunks (§4.1
// through §4.4). Synchronous use is direct: call Pipeline.Run. Large
// documents go through the async job queue in queue.go instead, grounded
// on the teacher's IngestJob pattern (legal-gateway/worker.go).
package ingest

import (
	"context"

	"github.com/insurai/coverage-guardrail/internal/chunker"
	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/embedding"
	"github.com/insurai/coverage-guardrail/internal/extractor"
	"github.com/insurai/coverage-guardrail/internal/model"
	"github.com/insurai/coverage-guardrail/internal/store"
)

// Result summarizes one ingestion run.
type Result struct {
	PolicyID    string
	ChunkCount  int
	Pages       int
	FailedPages []extractor.FailedPage
}

// Pipeline owns the four capabilities an ingestion run depends on.
type Pipeline struct {
	extractor  *extractor.Extractor
	chunkerCfg chunker.Config
	classifier *chunker.Classifier
	embedder   embedding.Provider
	store      store.ChunkStore

	onExtractionFailed func(*coverageerr.Error)
	onClassifyError    func(error)
}

// New builds a Pipeline.
func New(ex *extractor.Extractor, chunkerCfg chunker.Config, cl *chunker.Classifier, emb embedding.Provider, st store.ChunkStore) *Pipeline {
	return &Pipeline{extractor: ex, chunkerCfg: chunkerCfg, classifier: cl, embedder: emb, store: st}
}

// OnExtractionFailed registers a callback for per-page extraction
// failures; ingestion continues regardless (§7 ExtractionFailed).
func (p *Pipeline) OnExtractionFailed(fn func(*coverageerr.Error)) {
	p.onExtractionFailed = fn
}

// OnClassifyError registers a callback invoked when the refinement call
// for a chunk fails outright (e.g. provider unavailable after retries).
// The chunk is still kept, classified by its heuristic prior.
func (p *Pipeline) OnClassifyError(fn func(error)) {
	p.onClassifyError = fn
}

// Run extracts, chunks, classifies, embeds and stores every page of pages
// under policyID. It is the caller's responsibility to have already
// deleted any prior chunks for policyID if this is a re-ingestion.
func (p *Pipeline) Run(ctx context.Context, policyID, documentID string, pages []extractor.PageSource) (Result, error) {
	extracted := p.extractor.Extract(ctx, documentID, pages)
	for _, f := range extracted.Failed {
		if p.onExtractionFailed != nil {
			p.onExtractionFailed(coverageerr.ExtractionFailed(f.PageNumber, f.Cause))
		}
	}

	candidates := chunker.Split(extracted.Blocks, p.chunkerCfg)

	newChunks := make([]model.NewChunk, 0, len(candidates))
	texts := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		kind, _, err := p.classifier.Classify(ctx, cand)
		if err != nil && p.onClassifyError != nil {
			p.onClassifyError(err)
		}
		newChunks = append(newChunks, model.NewChunk{
			Text: cand.Text, Kind: kind, PageNumber: cand.PageNumber,
			SectionTitle: cand.SectionTitle, Position: cand.Position,
		})
		texts = append(texts, cand.Text)
	}

	if len(newChunks) == 0 {
		return Result{PolicyID: policyID, ChunkCount: 0, Pages: len(pages), FailedPages: extracted.Failed}, nil
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, err
	}
	wantDims := p.embedder.Dimensions()
	for i, v := range vectors {
		if len(v) != wantDims {
			return Result{}, coverageerr.EmbeddingDimensionMismatch(wantDims, len(v))
		}
		newChunks[i].Embedding = v
	}

	stored, err := p.store.PutBatch(ctx, policyID, newChunks)
	if err != nil {
		return Result{}, err
	}

	return Result{PolicyID: policyID, ChunkCount: len(stored), Pages: len(pages), FailedPages: extracted.Failed}, nil
}
