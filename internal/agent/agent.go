// Package agent implements the Coverage Agent (the Guardrail) of spec
// §4.6: a fixed-order state machine — ROUTE, EXCLUSION_PROBE,
// INCLUSION_PROBE, FINANCIAL_PROBE, COMPOSE — where the order is a legal
// correctness invariant, not a performance choice. It is deliberately a
// straight-line sequence of Go function calls rather than a graph, so the
// guardrail order can only change with a code review, never a config edit.
package agent

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/embedding"
	"github.com/insurai/coverage-guardrail/internal/llm"
	"github.com/insurai/coverage-guardrail/internal/model"
	"github.com/insurai/coverage-guardrail/internal/store"
)

// Instrumentation receives step-level timing and outcome events. A nil
// Instrumentation is valid; every method is called only if non-nil.
type Instrumentation interface {
	StepDuration(step Step, d time.Duration)
	StepOutcome(step Step, outcome string)
}

// Agent wires together the three capabilities the guardrail depends on.
type Agent struct {
	store     store.ChunkStore
	embedder  embedding.Provider
	llm       llm.Provider
	cfg       Config
	instr     Instrumentation
	onUncertain func(*coverageerr.Error)
}

// New builds an Agent. instr may be nil.
func New(st store.ChunkStore, emb embedding.Provider, prov llm.Provider, cfg Config, instr Instrumentation) *Agent {
	return &Agent{store: st, embedder: emb, llm: prov, cfg: cfg, instr: instr}
}

// OnUncertain registers a callback fired whenever a composed answer fails
// the groundedness check and the verdict is downgraded to UNKNOWN.
func (a *Agent) OnUncertain(fn func(*coverageerr.Error)) {
	a.onUncertain = fn
}

// Result is what Run ultimately produces for a turn: either a verdict or a
// turn-level failure. Exactly one of the two is populated.
type Result struct {
	Verdict model.Verdict
	Err     error
}

// Run executes one full guardrail turn and returns a token stream (the
// composer's output, in emission order) and a single-value result channel
// carrying the final verdict. Both channels are closed exactly once; tokens
// closes first, then result.
func (a *Agent) Run(ctx context.Context, policyID, utterance string) (<-chan string, <-chan Result) {
	tokens := make(chan string, 16)
	result := make(chan Result, 1)

	go func() {
		defer close(result)
		defer close(tokens)

		verdict, err := a.evaluate(ctx, policyID, utterance, tokens)
		if err != nil {
			result <- Result{Err: err}
			return
		}
		result <- Result{Verdict: verdict}
	}()

	return tokens, result
}

func (a *Agent) evaluate(ctx context.Context, policyID, utterance string, tokens chan<- string) (model.Verdict, error) {
	if ctx.Err() != nil {
		return model.Verdict{}, coverageerr.Cancelled(ctx.Err())
	}

	start := time.Now()
	intent, items := Route(utterance)
	a.observe(StepRoute, start, "ok")

	item := utterance
	if len(items) > 0 {
		item = items[0]
	}

	queryEmbedding, err := a.embedder.EmbedOne(ctx, utterance+" "+item)
	if err != nil {
		return model.Verdict{}, err
	}

	if intent != IntentCheckCoverage {
		return a.composeNonCoverage(ctx, policyID, item, queryEmbedding, tokens)
	}

	return a.runGuardrail(ctx, policyID, item, queryEmbedding, tokens)
}

// runGuardrail implements the fixed sequence of §4.6 for a CHECK_COVERAGE
// turn: EXCLUSION_PROBE, then (only if not excluded) INCLUSION_PROBE, then
// (only if covered) FINANCIAL_PROBE, then always COMPOSE.
func (a *Agent) runGuardrail(ctx context.Context, policyID, item string, queryEmbedding []float32, tokens chan<- string) (model.Verdict, error) {
	start := time.Now()
	excluded, exclCitation, exclConf, err := a.runExclusionProbe(ctx, policyID, queryEmbedding, item)
	if err != nil {
		a.observe(StepExclusionProbe, start, "error")
		return model.Verdict{}, err
	}
	a.observe(StepExclusionProbe, start, outcomeOf(excluded))

	if excluded {
		v := model.Verdict{
			Status: model.StatusNotCovered, Item: item,
			Reason: exclCitation.Quote, Confidence: exclConf,
			Citations: []model.Citation{*exclCitation},
		}
		return a.compose(ctx, v, tokens)
	}

	start = time.Now()
	covered, inclCitation, inclConf, err := a.runInclusionProbe(ctx, policyID, queryEmbedding, item)
	if err != nil {
		a.observe(StepInclusionProbe, start, "error")
		return model.Verdict{}, err
	}
	a.observe(StepInclusionProbe, start, outcomeOf(covered))

	if !covered {
		v := model.Verdict{
			Status: model.StatusUnknown, Item: item,
			Reason: "no policy text establishes coverage for this item", Confidence: 0,
		}
		return a.compose(ctx, v, tokens)
	}

	start = time.Now()
	financials, finCitation, err := a.runFinancialProbe(ctx, policyID, queryEmbedding)
	if err != nil {
		a.observe(StepFinancialProbe, start, "error")
		return model.Verdict{}, err
	}
	a.observe(StepFinancialProbe, start, outcomeOf(financials != nil))

	v := model.Verdict{
		Status: model.StatusCovered, Item: item,
		Reason: inclCitation.Quote, Confidence: inclConf,
		Citations: []model.Citation{*inclCitation},
	}
	if financials != nil {
		// A non-nil financial detail carries a LIMITATION-kind citation,
		// which invariant 2 forbids on a COVERED verdict; CONDITIONAL has
		// no such restriction, so attaching financials always demotes the
		// status rather than leaving it COVERED.
		v.Status = model.StatusCondition
		v.Financials = financials
		v.Confidence = maxFloat(exclConf, inclConf)
		v.Citations = append(v.Citations, *finCitation)
	}
	return a.compose(ctx, v, tokens)
}

// composeNonCoverage implements the non-CHECK_COVERAGE path of §4.6 step
// 1: a bounded retrieval across all kinds, composed with citations, no
// exclusion/inclusion dominance logic applies.
func (a *Agent) composeNonCoverage(ctx context.Context, policyID, item string, queryEmbedding []float32, tokens chan<- string) (model.Verdict, error) {
	chunks, err := a.store.Similar(ctx, policyID, queryEmbedding, a.cfg.KInclusion, nil)
	if err != nil {
		return model.Verdict{}, err
	}

	v := model.Verdict{Status: model.StatusUnknown, Item: item, Reason: "general information request"}
	for _, c := range chunks {
		v.Citations = append(v.Citations, citationFrom(c.Chunk))
	}
	return a.compose(ctx, v, tokens)
}

// compose implements §4.6 step 5: stream the composer's tokens and run a
// groundedness check over the finished text before returning the verdict.
// A claim that mentions a number absent from every citation or financial
// figure is treated as composition failure and downgrades the verdict to
// UNKNOWN (§7 GroundingFailure).
func (a *Agent) compose(ctx context.Context, v model.Verdict, tokens chan<- string) (model.Verdict, error) {
	start := time.Now()
	cc := llm.ComposeContext{
		Item: v.Item, Status: v.Status, Reason: v.Reason,
		Confidence: v.Confidence, Citations: v.Citations, Financials: v.Financials,
	}

	stream, errc := a.llm.Compose(ctx, cc)
	var full strings.Builder
	for tok := range stream {
		full.WriteString(tok)
		select {
		case <-ctx.Done():
			a.observe(StepCompose, start, "cancelled")
			return model.Verdict{}, coverageerr.Cancelled(ctx.Err())
		case tokens <- tok:
		}
	}
	// errc only receives a value when composition fails, and that send
	// happens before stream closes, so a non-blocking read sees it.
	select {
	case err := <-errc:
		if err != nil {
			a.observe(StepCompose, start, "error")
			return model.Verdict{}, err
		}
	default:
	}

	if !grounded(full.String(), v) {
		gf := coverageerr.GroundingFailure("composed answer references a figure absent from the supplied citations")
		if a.onUncertain != nil {
			a.onUncertain(gf)
		}
		v = model.Verdict{Status: model.StatusUnknown, Item: v.Item, Reason: "composed answer could not be grounded in policy text"}
	}

	a.observe(StepCompose, start, "ok")
	return v, nil
}

var numberRe = regexp.MustCompile(`\d[\d,]*`)

// grounded checks that every number mentioned in text also appears in one
// of v's citation quotes or financial figures. It is a narrow, literal
// check — not a semantic one — by design: it catches hallucinated dollar
// amounts, not every form of unsupported claim.
func grounded(text string, v model.Verdict) bool {
	allowed := map[string]bool{}
	for _, c := range v.Citations {
		for _, n := range numberRe.FindAllString(c.Quote, -1) {
			allowed[strings.ReplaceAll(n, ",", "")] = true
		}
	}
	if v.Financials != nil {
		if v.Financials.Deductible != nil {
			allowed[strconv.FormatFloat(*v.Financials.Deductible, 'f', -1, 64)] = true
		}
		if v.Financials.Cap != nil {
			allowed[strconv.FormatFloat(*v.Financials.Cap, 'f', -1, 64)] = true
		}
	}

	for _, n := range numberRe.FindAllString(text, -1) {
		clean := strings.ReplaceAll(n, ",", "")
		if !allowed[clean] {
			return false
		}
	}
	return true
}

func outcomeOf(b bool) string {
	if b {
		return "positive"
	}
	return "negative"
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (a *Agent) observe(step Step, start time.Time, outcome string) {
	if a.instr == nil {
		return
	}
	a.instr.StepDuration(step, time.Since(start))
	a.instr.StepOutcome(step, outcome)
}
