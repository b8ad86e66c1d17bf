package agent

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/insurai/coverage-guardrail/internal/model"
)

// Step names the fixed states of the guardrail (§4.6). The order these
// constants are declared in carries no runtime meaning by itself — the
// order is enforced by Run calling the step functions directly, in
// sequence, as Go code. A string table exists only so metrics can label
// which step is running.
type Step string

const (
	StepRoute           Step = "ROUTE"
	StepExclusionProbe  Step = "EXCLUSION_PROBE"
	StepInclusionProbe  Step = "INCLUSION_PROBE"
	StepFinancialProbe  Step = "FINANCIAL_PROBE"
	StepCompose         Step = "COMPOSE"
)

// evaluatedChunk pairs a retrieved chunk with its evaluate_* verdict.
type evaluatedChunk struct {
	chunk      model.ScoredChunk
	excluded   bool
	covered    bool
	confidence float64
}

// runExclusionProbe implements §4.6 step 2: retrieve EXCLUSION/LIMITATION
// chunks, fan out evaluate_exclusion bounded by fanoutLimit, and pick the
// highest-confidence excluded=true result — never a non-exclusion result,
// however confident, which would mask a qualifying exclusion elsewhere in
// the set.
func (a *Agent) runExclusionProbe(ctx context.Context, policyID string, queryEmbedding []float32, item string) (excluded bool, citation *model.Citation, confidence float64, err error) {
	chunks, err := a.store.Similar(ctx, policyID, queryEmbedding, a.cfg.KExclusion, []model.Kind{model.KindExclusion, model.KindLimitation})
	if err != nil {
		return false, nil, 0, err
	}
	if len(chunks) == 0 {
		return false, nil, 0, nil
	}

	results, err := a.fanOutExclusion(ctx, chunks, item)
	if err != nil {
		return false, nil, 0, err
	}

	sortByConfidence(results)
	confidence = results[0].confidence

	// A high-confidence non-exclusion verdict must never outrank a
	// lower-but-qualifying exclusion verdict (invariant 4, guardrail
	// dominance) — so the winner is picked from excluded==true results
	// only, not from the full set.
	if best, ok := bestExcluded(results); ok && best.confidence >= a.cfg.TauExclusion {
		c := citationFrom(best.chunk.Chunk)
		return true, &c, best.confidence, nil
	}
	return false, nil, confidence, nil
}

// runInclusionProbe implements §4.6 step 3, the symmetric protocol over
// INCLUSION/DEFINITION/GENERAL chunks.
func (a *Agent) runInclusionProbe(ctx context.Context, policyID string, queryEmbedding []float32, item string) (covered bool, citation *model.Citation, confidence float64, err error) {
	chunks, err := a.store.Similar(ctx, policyID, queryEmbedding, a.cfg.KInclusion, []model.Kind{model.KindInclusion, model.KindDefinition, model.KindGeneral})
	if err != nil {
		return false, nil, 0, err
	}
	if len(chunks) == 0 {
		return false, nil, 0, nil
	}

	results, err := a.fanOutInclusion(ctx, chunks, item)
	if err != nil {
		return false, nil, 0, err
	}

	sortByConfidence(results)
	confidence = results[0].confidence

	// Symmetric to the exclusion probe: a high-confidence covered=false
	// verdict must not hide a lower-but-qualifying covered=true verdict.
	if best, ok := bestCovered(results); ok && best.confidence >= a.cfg.TauInclusion {
		c := citationFrom(best.chunk.Chunk)
		return true, &c, best.confidence, nil
	}
	return false, nil, confidence, nil
}

// runFinancialProbe implements §4.6 step 4. It only ever runs once the
// item is known covered, and its result can never overturn that: a
// non-empty Financials here is the reason the final status becomes
// CONDITIONAL instead of COVERED (see runGuardrail), never NOT_COVERED.
func (a *Agent) runFinancialProbe(ctx context.Context, policyID string, queryEmbedding []float32) (*model.Financials, *model.Citation, error) {
	chunks, err := a.store.Similar(ctx, policyID, queryEmbedding, a.cfg.KFinancial, []model.Kind{model.KindLimitation})
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	top := chunks[0]
	f, err := a.llm.ExtractFinancials(ctx, top.Chunk.Text)
	if err != nil {
		return nil, nil, err
	}
	if f.Deductible == nil && f.Cap == nil {
		return nil, nil, nil
	}
	c := citationFrom(top.Chunk)
	return &f, &c, nil
}

// sortByConfidence orders results highest-confidence first, breaking ties by
// lowest chunk position, regardless of the excluded/covered flag — used only
// to report a representative confidence, never to pick the governing verdict.
func sortByConfidence(results []evaluatedChunk) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].confidence != results[j].confidence {
			return results[i].confidence > results[j].confidence
		}
		return results[i].chunk.Chunk.Position < results[j].chunk.Chunk.Position
	})
}

// bestExcluded returns the highest-confidence excluded=true result, if any.
// results must already be sorted by sortByConfidence.
func bestExcluded(results []evaluatedChunk) (evaluatedChunk, bool) {
	for _, r := range results {
		if r.excluded {
			return r, true
		}
	}
	return evaluatedChunk{}, false
}

// bestCovered returns the highest-confidence covered=true result, if any.
// results must already be sorted by sortByConfidence.
func bestCovered(results []evaluatedChunk) (evaluatedChunk, bool) {
	for _, r := range results {
		if r.covered {
			return r, true
		}
	}
	return evaluatedChunk{}, false
}

func (a *Agent) fanOutExclusion(ctx context.Context, chunks []model.ScoredChunk, item string) ([]evaluatedChunk, error) {
	out := make([]evaluatedChunk, len(chunks))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(a.cfg.FanoutLimit)
	for i, c := range chunks {
		i, c := i, c
		eg.Go(func() error {
			v, err := a.llm.EvaluateExclusion(gctx, c.Chunk.Text, item)
			if err != nil {
				return err
			}
			out[i] = evaluatedChunk{chunk: c, excluded: v.Excluded, confidence: v.Confidence}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Agent) fanOutInclusion(ctx context.Context, chunks []model.ScoredChunk, item string) ([]evaluatedChunk, error) {
	out := make([]evaluatedChunk, len(chunks))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(a.cfg.FanoutLimit)
	for i, c := range chunks {
		i, c := i, c
		eg.Go(func() error {
			v, err := a.llm.EvaluateInclusion(gctx, c.Chunk.Text, item)
			if err != nil {
				return err
			}
			out[i] = evaluatedChunk{chunk: c, covered: v.Covered, confidence: v.Confidence}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func citationFrom(c model.Chunk) model.Citation {
	q := c.Text
	if len(q) > 240 {
		q = q[:240]
	}
	return model.Citation{ChunkID: c.ID, Page: c.PageNumber, Section: c.SectionTitle, Quote: q, Kind: c.Kind}
}
