// Package store implements the Chunk Store capability of spec §4.4:
// policy-isolated persistence and cosine-similarity retrieval over chunk
// embeddings. Every query is hard-filtered by policy_id; a chunk surfacing
// from a foreign policy is a fatal bug, never a soft warning.
package store

import (
	"context"

	"github.com/insurai/coverage-guardrail/internal/model"
)

// ChunkStore is the persistence capability the ingestion pipeline and the
// Coverage Agent share.
type ChunkStore interface {
	// PutBatch atomically inserts all of chunks under policyID, assigning
	// each an id. A second concurrent PutBatch for the same policyID
	// while one is in flight MUST fail with coverageerr.StoreConflict.
	PutBatch(ctx context.Context, policyID string, chunks []model.NewChunk) ([]model.Chunk, error)

	// DeletePolicy removes every chunk for policyID.
	DeletePolicy(ctx context.Context, policyID string) error

	// Similar returns the top-k chunks for policyID closest to query,
	// restricted to kindFilter when non-empty, ordered by descending
	// score then ascending position (tie-break, §4.6 step 2/3).
	Similar(ctx context.Context, policyID string, query []float32, k int, kindFilter []model.Kind) ([]model.ScoredChunk, error)

	// Fetch returns a single chunk by id, scoped to policyID.
	Fetch(ctx context.Context, policyID, chunkID string) (model.Chunk, error)

	// Count returns the number of chunks stored for policyID.
	Count(ctx context.Context, policyID string) (int, error)
}
