package chunker

import (
	"context"
	"strings"

	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/model"
)

// cueTable is the heuristic prior of §4.2 stage 1: ordered so the first
// matching kind wins when a chunk's text contains cue words for more than
// one kind. Exclusion and inclusion, legally the most sensitive, are
// checked first, then definition, limitation and procedure.
var cueTable = []struct {
	kind model.Kind
	cues []string
}{
	{model.KindExclusion, []string{
		"not covered", "excluded", "does not cover", "we do not insure",
		"following are not included", "except", "no coverage for",
	}},
	{model.KindInclusion, []string{
		"we will pay", "coverage includes", "is covered", "benefits include",
	}},
	{model.KindDefinition, []string{"means", "defined as", "refers to"}},
	{model.KindLimitation, []string{"up to", "maximum", "cap", "deductible", "limit"}},
	{model.KindProcedure, []string{"must", "required to", "notify", "within"}},
}

// refinableKinds are the three kinds whose misclassification is legally
// costly enough to warrant optional LLM refinement, per §4.2 stage 2.
var refinableKinds = map[model.Kind]bool{
	model.KindExclusion: true, model.KindInclusion: true, model.KindLimitation: true,
}

// Classifier assigns exactly one Kind per chunk candidate.
type Classifier struct {
	refiner   Refiner
	onUncertain func(*coverageerr.Error)
}

// Refiner is the narrow slice of the LLM Provider capability the classifier
// needs: confirm or override a tentative kind from the closed enum.
type Refiner interface {
	ClassifyChunk(ctx context.Context, text, heading string) (model.Kind, error)
}

// New builds a Classifier. refiner may be nil to disable stage 2 entirely.
func New(refiner Refiner) *Classifier {
	return &Classifier{refiner: refiner}
}

// OnUncertain registers a callback invoked whenever an LLM refinement
// answer falls outside the closed enum, for audit logging (§7
// ClassificationUncertain).
func (c *Classifier) OnUncertain(fn func(*coverageerr.Error)) {
	c.onUncertain = fn
}

// Prior computes the heuristic stage-1 kind for a chunk, with section
// context winning ties: a chunk under a heading matching one of the known
// section keywords takes that kind even absent cue words.
func Prior(text, sectionTitle string) model.Kind {
	upperSection := strings.ToUpper(sectionTitle)
	switch {
	case strings.Contains(upperSection, "EXCLUSION"):
		return model.KindExclusion
	case strings.Contains(upperSection, "COVERAGE"):
		return model.KindInclusion
	case strings.Contains(upperSection, "DEFINITION"):
		return model.KindDefinition
	case strings.Contains(upperSection, "LIMITATION"):
		return model.KindLimitation
	case strings.Contains(upperSection, "OBLIGATION"):
		return model.KindProcedure
	}

	lower := strings.ToLower(text)
	for _, row := range cueTable {
		for _, cue := range row.cues {
			if strings.Contains(lower, cue) {
				return row.kind
			}
		}
	}
	return model.KindGeneral
}

// Classify assigns the final Kind for one candidate: the heuristic prior,
// optionally confirmed or overridden by the LLM refiner when the prior is
// one of the three legally-sensitive kinds. An out-of-enum refiner answer
// is discarded and the prior wins (§4.2, §9 Open Questions).
func (c *Classifier) Classify(ctx context.Context, cand Candidate) (model.Kind, bool, error) {
	prior := Prior(cand.Text, cand.SectionTitle)

	if c.refiner == nil || !refinableKinds[prior] {
		return prior, false, nil
	}

	refined, err := c.refiner.ClassifyChunk(ctx, cand.Text, cand.SectionTitle)
	if err != nil {
		return prior, false, err
	}
	if !refined.Valid() {
		if c.onUncertain != nil {
			c.onUncertain(coverageerr.ClassificationUncertain(string(refined)))
		}
		return prior, false, nil
	}
	return refined, refined != prior, nil
}
