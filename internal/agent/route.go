package agent

import (
	"regexp"
	"strings"
)

// Intent is the closed set of user-turn intents the ROUTE step recognizes.
type Intent string

const (
	IntentCheckCoverage Intent = "CHECK_COVERAGE"
	IntentExplainTerms  Intent = "EXPLAIN_TERMS"
	IntentGetLimits     Intent = "GET_LIMITS"
	IntentGeneral       Intent = "GENERAL"
)

var (
	limitsCues  = []string{"deductible", "limit", "cap", "maximum", "how much"}
	explainCues = []string{"what is", "what does", "mean", "define", "explain"}
	coverCues   = []string{"covered", "cover", "insure", "insured", "pay for"}

	stopWords = map[string]bool{
		"a": true, "an": true, "the": true, "is": true, "are": true, "my": true,
		"for": true, "of": true, "to": true, "i": true, "does": true, "do": true,
		"covered": true, "cover": true, "coverage": true, "under": true, "this": true,
		"policy": true, "what": true, "it": true,
	}

	wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z'-]*`)
)

// Route classifies the utterance's intent and extracts candidate items,
// the noun phrases worth running through the guardrail. §4.6 step 1.
func Route(utterance string) (Intent, []string) {
	lower := strings.ToLower(utterance)

	intent := IntentGeneral
	switch {
	case containsAny(lower, limitsCues):
		intent = IntentGetLimits
	case containsAny(lower, explainCues):
		intent = IntentExplainTerms
	case containsAny(lower, coverCues):
		intent = IntentCheckCoverage
	}

	return intent, extractItems(lower)
}

func containsAny(text string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}

// extractItems is a deliberately simple noun-phrase heuristic: tokenize,
// drop stop words, keep runs of two or fewer content words as candidate
// items. It is not a parser; it is the same class of cue-word heuristic
// the chunker's classifier uses for stage 1.
func extractItems(lower string) []string {
	words := wordRe.FindAllString(lower, -1)

	var items []string
	var run []string
	flush := func() {
		if len(run) > 0 {
			items = append(items, strings.Join(run, " "))
			run = nil
		}
	}
	for _, w := range words {
		if stopWords[w] {
			flush()
			continue
		}
		run = append(run, w)
		if len(run) == 2 {
			flush()
		}
	}
	flush()

	if len(items) == 0 {
		items = []string{strings.TrimSpace(lower)}
	}
	return items
}
