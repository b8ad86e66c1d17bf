package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/model"
)

// PGStore is a Postgres+pgvector backed ChunkStore, grounded on the
// teacher's pgx query patterns (unified-rag-service/rag_implementations.go:
// retrieveSimilarChunks) adapted from a hybrid keyword+vector search down
// to the pure cosine-distance retrieval this spec calls for, with hard
// policy_id scoping on every statement.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps an existing pool. Callers own pool lifecycle.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const createTableDDL = `
CREATE TABLE IF NOT EXISTS coverage_chunks (
	id UUID PRIMARY KEY,
	policy_id TEXT NOT NULL,
	text TEXT NOT NULL,
	kind TEXT NOT NULL,
	page_number INT NOT NULL,
	section_title TEXT,
	position INT NOT NULL,
	embedding vector NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS coverage_chunks_policy_idx ON coverage_chunks (policy_id);
`

// EnsureSchema creates the backing table and index if absent.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, createTableDDL)
	return err
}

// PutBatch takes a per-policy Postgres advisory lock for the duration of
// the transaction, so two concurrent ingestions for the same policy can
// never interleave; the second caller fails fast with StoreConflict
// instead of blocking, since a blocked ingest call would look identical to
// a slow one to the caller.
func (s *PGStore) PutBatch(ctx context.Context, policyID string, chunks []model.NewChunk) ([]model.Chunk, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, coverageerr.ProviderUnavailable("postgres", err)
	}
	defer tx.Rollback(ctx)

	var acquired bool
	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock(hashtext($1))", policyID).Scan(&acquired); err != nil {
		return nil, coverageerr.ProviderUnavailable("postgres", err)
	}
	if !acquired {
		return nil, coverageerr.StoreConflict(policyID)
	}

	out := make([]model.Chunk, len(chunks))
	for i, c := range chunks {
		id := uuid.NewString()
		_, err := tx.Exec(ctx, `
			INSERT INTO coverage_chunks (id, policy_id, text, kind, page_number, section_title, position, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, policyID, c.Text, string(c.Kind), c.PageNumber, c.SectionTitle, c.Position, pgvector.NewVector(c.Embedding))
		if err != nil {
			return nil, coverageerr.ProviderUnavailable("postgres", err)
		}
		out[i] = model.Chunk{
			ID: id, PolicyID: policyID, Text: c.Text, Kind: c.Kind,
			PageNumber: c.PageNumber, SectionTitle: c.SectionTitle, Position: c.Position,
			Embedding: c.Embedding, EmbeddingDims: len(c.Embedding),
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, coverageerr.ProviderUnavailable("postgres", err)
	}
	return out, nil
}

func (s *PGStore) DeletePolicy(ctx context.Context, policyID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM coverage_chunks WHERE policy_id = $1", policyID)
	if err != nil {
		return coverageerr.ProviderUnavailable("postgres", err)
	}
	return nil
}

// Similar issues a cosine-distance ordered query restricted to policyID,
// converting pgvector's distance into the same [0,1] "(1+cos)/2" score
// space MemStore uses so the two implementations are directly comparable.
func (s *PGStore) Similar(ctx context.Context, policyID string, query []float32, k int, kindFilter []model.Kind) ([]model.ScoredChunk, error) {
	args := []any{policyID, pgvector.NewVector(query)}
	q := `
		SELECT id, text, kind, page_number, section_title, position, embedding,
			(1 - (embedding <=> $2) / 2) AS score
		FROM coverage_chunks
		WHERE policy_id = $1`

	if len(kindFilter) > 0 {
		placeholders := make([]string, len(kindFilter))
		for i, k := range kindFilter {
			args = append(args, string(k))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		q += fmt.Sprintf(" AND kind = ANY(ARRAY[%s])", strings.Join(placeholders, ","))
	}

	q += " ORDER BY embedding <=> $2 ASC, position ASC"
	if k > 0 {
		args = append(args, k)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, coverageerr.ProviderUnavailable("postgres", err)
	}
	defer rows.Close()

	var out []model.ScoredChunk
	for rows.Next() {
		var c model.Chunk
		var kind string
		var vec pgvector.Vector
		var score float64
		if err := rows.Scan(&c.ID, &c.Text, &kind, &c.PageNumber, &c.SectionTitle, &c.Position, &vec, &score); err != nil {
			return nil, coverageerr.ProviderUnavailable("postgres", err)
		}
		c.PolicyID = policyID
		c.Kind = model.Kind(kind)
		c.Embedding = vec.Slice()
		c.EmbeddingDims = len(c.Embedding)
		out = append(out, model.ScoredChunk{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, coverageerr.ProviderUnavailable("postgres", err)
	}
	return out, nil
}

func (s *PGStore) Fetch(ctx context.Context, policyID, chunkID string) (model.Chunk, error) {
	var c model.Chunk
	var kind string
	var vec pgvector.Vector
	row := s.pool.QueryRow(ctx, `
		SELECT id, text, kind, page_number, section_title, position, embedding
		FROM coverage_chunks WHERE policy_id = $1 AND id = $2`, policyID, chunkID)
	if err := row.Scan(&c.ID, &c.Text, &kind, &c.PageNumber, &c.SectionTitle, &c.Position, &vec); err != nil {
		if err == pgx.ErrNoRows {
			return model.Chunk{}, coverageerr.ChunkNotFound(chunkID)
		}
		return model.Chunk{}, coverageerr.ProviderUnavailable("postgres", err)
	}
	c.PolicyID = policyID
	c.Kind = model.Kind(kind)
	c.Embedding = vec.Slice()
	c.EmbeddingDims = len(c.Embedding)
	return c, nil
}

func (s *PGStore) Count(ctx context.Context, policyID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM coverage_chunks WHERE policy_id = $1", policyID).Scan(&n); err != nil {
		return 0, coverageerr.ProviderUnavailable("postgres", err)
	}
	return n, nil
}
