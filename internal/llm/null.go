package llm

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/insurai/coverage-guardrail/internal/model"
)

// NullLLM is a deterministic, cue-word-driven adapter with no network
// calls: cue-word heuristics in the style of the chunker's Prior (a shorter
// cue list, not the same table), repurposed as a
// stand-in "model" for tests and local development. It never streams from
// a real backend; Compose assembles a templated answer from the supplied
// context and emits it word by word to exercise streaming consumers.
type NullLLM struct{}

// NewNullLLM builds a NullLLM.
func NewNullLLM() *NullLLM { return &NullLLM{} }

func (n *NullLLM) ClassifyChunk(ctx context.Context, text, heading string) (model.Kind, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "not covered") || strings.Contains(lower, "excluded") || strings.Contains(lower, "except") || strings.Contains(lower, "not insure"):
		return model.KindExclusion, nil
	case strings.Contains(lower, "covered") || strings.Contains(lower, "we will pay") || strings.Contains(lower, "includes"):
		return model.KindInclusion, nil
	case strings.Contains(lower, "means") || strings.Contains(lower, "defined as"):
		return model.KindDefinition, nil
	case strings.Contains(lower, "deductible") || strings.Contains(lower, "maximum") || strings.Contains(lower, "cap"):
		return model.KindLimitation, nil
	case strings.Contains(lower, "must") || strings.Contains(lower, "notify"):
		return model.KindProcedure, nil
	}
	return model.KindGeneral, nil
}

func (n *NullLLM) EvaluateExclusion(ctx context.Context, chunkText, item string) (ExclusionVerdict, error) {
	lower := strings.ToLower(chunkText)
	itemLower := strings.ToLower(item)
	if strings.Contains(lower, itemLower) && (strings.Contains(lower, "not insure") ||
		strings.Contains(lower, "not covered") || strings.Contains(lower, "excluded") ||
		strings.Contains(lower, "do not cover")) {
		return ExclusionVerdict{Excluded: true, Confidence: 0.9, Reason: "chunk names the item alongside exclusion language"}, nil
	}
	return ExclusionVerdict{Excluded: false, Confidence: 0.7, Reason: "no exclusion cue found for item"}, nil
}

func (n *NullLLM) EvaluateInclusion(ctx context.Context, chunkText, item string) (InclusionVerdict, error) {
	lower := strings.ToLower(chunkText)
	itemLower := strings.ToLower(item)
	if strings.Contains(lower, itemLower) && (strings.Contains(lower, "covered") ||
		strings.Contains(lower, "we will pay") || strings.Contains(lower, "includes") ||
		strings.Contains(lower, "benefits include")) {
		return InclusionVerdict{Covered: true, Confidence: 0.85, Reason: "chunk names the item alongside inclusion language"}, nil
	}
	return InclusionVerdict{Covered: false, Confidence: 0.6, Reason: "no inclusion cue found for item"}, nil
}

var (
	deductibleRe = regexp.MustCompile(`(?i)deductible[^.]*?\$?([0-9][0-9,]*(?:\.[0-9]+)?)`)
	capRe        = regexp.MustCompile(`(?i)(?:maximum|cap)[^.]*?\$?([0-9][0-9,]*(?:\.[0-9]+)?)`)
)

func (n *NullLLM) ExtractFinancials(ctx context.Context, chunkText string) (model.Financials, error) {
	var f model.Financials
	if m := deductibleRe.FindStringSubmatch(chunkText); m != nil {
		if v, err := parseMoney(m[1]); err == nil {
			f.Deductible = &v
		}
	}
	if m := capRe.FindStringSubmatch(chunkText); m != nil {
		if v, err := parseMoney(m[1]); err == nil {
			f.Cap = &v
		}
	}
	f.Conditions = strings.TrimSpace(chunkText)
	return f, nil
}

func parseMoney(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func (n *NullLLM) Compose(ctx context.Context, cc ComposeContext) (<-chan string, <-chan error) {
	tokens := make(chan string, 8)
	errc := make(chan error, 1)

	text := templateAnswer(cc)
	words := strings.Fields(text)

	go func() {
		defer close(tokens)
		for _, w := range words {
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case tokens <- w + " ":
			}
		}
	}()

	return tokens, errc
}

func templateAnswer(cc ComposeContext) string {
	var sb strings.Builder
	switch cc.Status {
	case model.StatusCovered:
		sb.WriteString(cc.Item + " is covered. ")
	case model.StatusNotCovered:
		sb.WriteString(cc.Item + " is not covered. ")
	case model.StatusCondition:
		sb.WriteString(cc.Item + " is conditionally covered. ")
	default:
		sb.WriteString("The policy does not clearly state whether " + cc.Item + " is covered. ")
	}
	if cc.Reason != "" {
		sb.WriteString(cc.Reason)
	}
	return sb.String()
}
