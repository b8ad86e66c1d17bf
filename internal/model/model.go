// Package model defines the core data types shared by every stage of the
// ingestion and query pipelines: chunks, policies, retrieval results and
// coverage verdicts.
package model

import "time"

// Kind is the closed taxonomy a chunk is classified into. Every switch over
// Kind in this codebase is exhaustive; an unhandled Kind is a load-time
// configuration error, never a silent fallthrough.
type Kind string

const (
	KindExclusion  Kind = "EXCLUSION"
	KindInclusion  Kind = "INCLUSION"
	KindDefinition Kind = "DEFINITION"
	KindLimitation Kind = "LIMITATION"
	KindProcedure  Kind = "PROCEDURE"
	KindGeneral    Kind = "GENERAL"
)

// Kinds lists the closed enum in a stable order, for validation and for
// building SQL "kind = ANY($1)" filters.
var Kinds = []Kind{KindExclusion, KindInclusion, KindDefinition, KindLimitation, KindProcedure, KindGeneral}

// Valid reports whether k is one of the closed set of chunk kinds.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// Chunk is the atomic unit of retrieval: a page-bounded slice of policy
// text carrying a classification, an embedding and its provenance.
type Chunk struct {
	ID            string    `json:"id"`
	PolicyID      string    `json:"policy_id"`
	Text          string    `json:"text"`
	Kind          Kind      `json:"kind"`
	PageNumber    int       `json:"page_number"`
	SectionTitle  string    `json:"section_title,omitempty"`
	Position      int       `json:"position"`
	Embedding     []float32 `json:"-"`
	EmbeddingDims int       `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewChunk is the shape accepted by put_batch: a chunk without an assigned
// id, since ids are assigned at insert time by the store.
type NewChunk struct {
	Text         string
	Kind         Kind
	PageNumber   int
	SectionTitle string
	Position     int
	Embedding    []float32
}

// Policy carries the display metadata for a policy document. It is not
// consulted by the reasoning core beyond its ID; it exists so the ingestion
// and query endpoints of §6 have somewhere to record provenance.
type Policy struct {
	PolicyID    string    `json:"policy_id"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ScoredChunk is a retrieval result: a chunk together with a similarity
// score in [0,1], where higher means more similar. Scores are only
// comparable within the same query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Status is the closed set of coverage verdict outcomes.
type Status string

const (
	StatusCovered    Status = "COVERED"
	StatusNotCovered Status = "NOT_COVERED"
	StatusCondition  Status = "CONDITIONAL"
	StatusUnknown    Status = "UNKNOWN"
)

// Citation is a chunk reference attached to a verdict, carrying enough
// provenance for a reader to verify the claim against the source text.
type Citation struct {
	ChunkID string `json:"chunk_id"`
	Page    int    `json:"page"`
	Section string `json:"section,omitempty"`
	Quote   string `json:"quote"`
	Kind    Kind   `json:"kind"`
}

// Financials is the optional monetary detail extracted by the financial
// probe (§4.6 step 4).
type Financials struct {
	Deductible *float64 `json:"deductible,omitempty"`
	Cap        *float64 `json:"cap,omitempty"`
	Conditions string   `json:"conditions,omitempty"`
}

// Verdict is the structured output of one Coverage Agent turn.
type Verdict struct {
	Status     Status      `json:"status"`
	Item       string      `json:"item"`
	Reason     string      `json:"reason"`
	Confidence float64     `json:"confidence"`
	Citations  []Citation  `json:"citations"`
	Financials *Financials `json:"financials,omitempty"`
}
