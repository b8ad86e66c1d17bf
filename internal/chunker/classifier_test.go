package chunker

import (
	"context"
	"testing"

	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/model"
)

func TestPrior_CueWords(t *testing.T) {
	cases := []struct {
		text string
		want model.Kind
	}{
		{"This loss is not covered under any circumstance.", model.KindExclusion},
		{"Coverage includes pistons and cylinder heads.", model.KindInclusion},
		{"Engine means the primary propulsion unit.", model.KindDefinition},
		{"Deductible: up to 400 per visit, maximum cap 15000.", model.KindLimitation},
		{"You must notify us within 30 days of loss.", model.KindProcedure},
		{"This is a general statement about the policy.", model.KindGeneral},
	}
	for _, c := range cases {
		if got := Prior(c.text, ""); got != c.want {
			t.Errorf("Prior(%q) = %s, want %s", c.text, got, c.want)
		}
	}
}

func TestPrior_SectionContextWinsTies(t *testing.T) {
	got := Prior("Turbo components.", "EXCLUSIONS")
	if got != model.KindExclusion {
		t.Fatalf("expected section heading to dominate lack of cue words, got %s", got)
	}
}

type stubRefiner struct {
	kind model.Kind
	err  error
}

func (s stubRefiner) ClassifyChunk(ctx context.Context, text, heading string) (model.Kind, error) {
	return s.kind, s.err
}

func TestClassify_RefinerOverridesOnlySensitiveKinds(t *testing.T) {
	c := New(stubRefiner{kind: model.KindGeneral})
	kind, changed, err := c.Classify(context.Background(), Candidate{Text: "Engine means the primary propulsion unit."})
	if err != nil {
		t.Fatal(err)
	}
	if kind != model.KindDefinition || changed {
		t.Fatalf("expected DEFINITION prior untouched (not a refinable kind), got %s changed=%v", kind, changed)
	}
}

func TestClassify_RefinerOverridesExclusionPrior(t *testing.T) {
	c := New(stubRefiner{kind: model.KindGeneral})
	kind, changed, err := c.Classify(context.Background(), Candidate{Text: "This is not covered."})
	if err != nil {
		t.Fatal(err)
	}
	if kind != model.KindGeneral || !changed {
		t.Fatalf("expected refiner to override EXCLUSION prior, got %s changed=%v", kind, changed)
	}
}

func TestClassify_OutOfEnumFallsBackToPrior(t *testing.T) {
	var uncertain bool
	c := New(stubRefiner{kind: model.Kind("NOT_A_REAL_KIND")})
	c.OnUncertain(func(e *coverageerr.Error) { uncertain = true })
	kind, changed, err := c.Classify(context.Background(), Candidate{Text: "This is not covered."})
	if err != nil {
		t.Fatal(err)
	}
	if kind != model.KindExclusion || changed {
		t.Fatalf("expected out-of-enum answer to fall back to EXCLUSION prior, got %s changed=%v", kind, changed)
	}
	if !uncertain {
		t.Fatal("expected OnUncertain callback to fire for out-of-enum refiner answer")
	}
}
