// Package llm implements the LLM Provider capability of spec §4.5: chunk
// classification, exclusion/inclusion/financial evaluation, and streamed
// answer composition. Structured calls decode against a declared schema via
// xjson; out-of-schema or out-of-enum answers are the caller's problem to
// downgrade, never this package's to paper over.
package llm

import (
	"context"

	"github.com/insurai/coverage-guardrail/internal/model"
)

// ExclusionVerdict is the structured answer to evaluate_exclusion.
type ExclusionVerdict struct {
	Excluded   bool    `json:"excluded"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// InclusionVerdict is the structured answer to evaluate_inclusion.
type InclusionVerdict struct {
	Covered    bool    `json:"covered"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ComposeContext is the structured context handed to compose(): the routed
// item, the final pre-composition status, and every citation gathered by
// the guardrail steps that ran. The composer is instructed to ground every
// claim in Citations and nothing else.
type ComposeContext struct {
	Item       string
	Status     model.Status
	Reason     string
	Confidence float64
	Citations  []model.Citation
	Financials *model.Financials
}

// Provider is the LLM capability interface of §4.5.
type Provider interface {
	// ClassifyChunk confirms or overrides the heuristic prior for one
	// chunk. §4.2 stage 2.
	ClassifyChunk(ctx context.Context, text, heading string) (model.Kind, error)

	// EvaluateExclusion judges whether chunkText excludes item. §4.6 step 2.
	EvaluateExclusion(ctx context.Context, chunkText, item string) (ExclusionVerdict, error)

	// EvaluateInclusion judges whether chunkText covers item. §4.6 step 3.
	EvaluateInclusion(ctx context.Context, chunkText, item string) (InclusionVerdict, error)

	// ExtractFinancials pulls deductible/cap/conditions out of chunkText.
	// §4.6 step 4. Implementations MAY combine a regex pre-pass with an
	// LLM call; callers only see the final structured result.
	ExtractFinancials(ctx context.Context, chunkText string) (model.Financials, error)

	// Compose renders the final natural-language answer for one turn,
	// streaming tokens in emission order. The channel is closed when
	// composition completes; a send on errc (buffered, capacity 1)
	// precedes channel close if composition failed partway through.
	Compose(ctx context.Context, cc ComposeContext) (<-chan string, <-chan error)
}
