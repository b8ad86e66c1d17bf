package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/model"
)

// MemStore is an in-memory brute-force ChunkStore, grounded on the
// teacher's VectorStore.cosineSimilarity/computeSimilarityCPU fallback
// path. It backs unit tests. Its ranking is exact, so it can serve as a
// recall oracle for other ChunkStore implementations; no test in this
// repository compares another store against it.
type MemStore struct {
	mu       sync.RWMutex
	byPolicy map[string][]model.Chunk
	ingest   map[string]bool // policyID currently mid-PutBatch
}

// NewMemStore builds an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		byPolicy: make(map[string][]model.Chunk),
		ingest:   make(map[string]bool),
	}
}

func (m *MemStore) PutBatch(ctx context.Context, policyID string, chunks []model.NewChunk) ([]model.Chunk, error) {
	m.mu.Lock()
	if m.ingest[policyID] {
		m.mu.Unlock()
		return nil, coverageerr.StoreConflict(policyID)
	}
	m.ingest[policyID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.ingest[policyID] = false
		m.mu.Unlock()
	}()

	out := make([]model.Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = model.Chunk{
			ID:            uuid.NewString(),
			PolicyID:      policyID,
			Text:          c.Text,
			Kind:          c.Kind,
			PageNumber:    c.PageNumber,
			SectionTitle:  c.SectionTitle,
			Position:      c.Position,
			Embedding:     c.Embedding,
			EmbeddingDims: len(c.Embedding),
		}
	}

	m.mu.Lock()
	m.byPolicy[policyID] = append(m.byPolicy[policyID], out...)
	m.mu.Unlock()

	return out, nil
}

func (m *MemStore) DeletePolicy(ctx context.Context, policyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byPolicy, policyID)
	return nil
}

func (m *MemStore) Similar(ctx context.Context, policyID string, query []float32, k int, kindFilter []model.Kind) ([]model.ScoredChunk, error) {
	m.mu.RLock()
	chunks := m.byPolicy[policyID]
	m.mu.RUnlock()

	allowed := kindSet(kindFilter)

	scored := make([]model.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.PolicyID != policyID {
			return nil, coverageerr.PolicyIsolationViolation(policyID, c.PolicyID)
		}
		if len(allowed) > 0 && !allowed[c.Kind] {
			continue
		}
		scored = append(scored, model.ScoredChunk{Chunk: c, Score: cosineSimilarity(query, c.Embedding)})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Position < scored[j].Chunk.Position
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (m *MemStore) Fetch(ctx context.Context, policyID, chunkID string) (model.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.byPolicy[policyID] {
		if c.ID == chunkID {
			return c, nil
		}
	}
	return model.Chunk{}, coverageerr.ChunkNotFound(chunkID)
}

func (m *MemStore) Count(ctx context.Context, policyID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byPolicy[policyID]), nil
}

func kindSet(kinds []model.Kind) map[model.Kind]bool {
	if len(kinds) == 0 {
		return nil
	}
	s := make(map[model.Kind]bool, len(kinds))
	for _, k := range kinds {
		s[k] = true
	}
	return s
}

// cosineSimilarity mirrors the teacher's VectorStore.cosineSimilarity, but
// maps into [0,1] the way pgstore's "(1 + cos) / 2" mapping does, so scores
// from the two stores are directly comparable.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (1 + cos) / 2
}
