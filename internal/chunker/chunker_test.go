package chunker

import (
	"strings"
	"testing"

	"github.com/insurai/coverage-guardrail/internal/extractor"
)

func TestSplit_NeverSpansPages(t *testing.T) {
	blocks := []extractor.TextBlock{
		{PageNumber: 1, Text: "Short page one text."},
		{PageNumber: 2, Text: "Short page two text."},
	}
	cands := Split(blocks, DefaultConfig())
	if len(cands) != 2 {
		t.Fatalf("expected one chunk per short page, got %d", len(cands))
	}
	if cands[0].PageNumber != 1 || cands[1].PageNumber != 2 {
		t.Fatalf("expected page numbers preserved in order, got %+v", cands)
	}
}

func TestSplit_BelowTargetSizeIsNotSplitFurther(t *testing.T) {
	text := strings.Repeat("a", 700)
	cands := Split([]extractor.TextBlock{{PageNumber: 1, Text: text}}, DefaultConfig())
	if len(cands) != 1 {
		t.Fatalf("expected exactly one chunk at/below target size, got %d", len(cands))
	}
	if cands[0].Text != text {
		t.Fatalf("expected chunk text to equal whole page text")
	}
}

func TestSplit_LongTextProducesOverlappingTiledChunks(t *testing.T) {
	sentence := "This is a sentence about the policy. "
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		sb.WriteString(sentence)
	}
	text := sb.String()

	cfg := Config{TargetSize: 500, OverlapFrac: 0.15}
	cands := Split([]extractor.TextBlock{{PageNumber: 1, Text: text}}, cfg)
	if len(cands) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(cands))
	}
	for i, c := range cands {
		if c.Position != i {
			t.Fatalf("expected dense monotonic positions, chunk %d has position %d", i, c.Position)
		}
	}
	if !strings.HasPrefix(text, cands[0].Text) {
		t.Fatal("expected first chunk to start at the beginning of the text")
	}
	if !strings.HasSuffix(text, cands[len(cands)-1].Text) {
		t.Fatal("expected last chunk to reach the end of the text")
	}
	total := 0
	for i, c := range cands {
		if !strings.Contains(text, c.Text) {
			t.Fatalf("expected chunk %d to be a contiguous slice of the text", i)
		}
		total += len(c.Text)
	}
	if total <= len(text) {
		t.Fatalf("expected overlapping chunks to total more than the text length, got %d <= %d", total, len(text))
	}
}

func TestSplit_SectionBecomesChunkSectionTitle(t *testing.T) {
	text := "EXCLUSIONS\nWe do not insure intentional damage you cause to the vehicle."
	cands := Split([]extractor.TextBlock{{PageNumber: 8, Text: text}}, DefaultConfig())
	if len(cands) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(cands))
	}
	if cands[0].SectionTitle != "EXCLUSIONS" {
		t.Fatalf("expected section title EXCLUSIONS, got %q", cands[0].SectionTitle)
	}
}
