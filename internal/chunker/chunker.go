// Package chunker splits extracted text into bounded, section-aware chunks
// and classifies each one into the closed Kind taxonomy, per spec §4.2.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/insurai/coverage-guardrail/internal/extractor"
)

// Config controls the chunk boundary search.
type Config struct {
	TargetSize   int     // target chunk length in characters (runes)
	OverlapFrac  float64 // soft overlap fraction across chunk boundaries
}

// DefaultConfig matches the 500-1000 char target, ~15% overlap of §4.2.
func DefaultConfig() Config {
	return Config{TargetSize: 800, OverlapFrac: 0.15}
}

// Candidate is an unclassified chunk: text plus provenance, awaiting a Kind
// from the classifier.
type Candidate struct {
	Text         string
	PageNumber   int
	SectionTitle string
	Position     int
}

// breakKind ranks boundary preference, highest value wins: section break >
// paragraph break > sentence break > hard cut (value 0, always available).
type breakKind int

const (
	breakHard breakKind = iota
	breakSentence
	breakParagraph
	breakSection
)

// Split turns an ordered block stream into position-ordered chunk
// candidates. A chunk never spans more than one page: page boundaries in
// blocks are hard split points, enforced simply by chunking each block
// independently.
func Split(blocks []extractor.TextBlock, cfg Config) []Candidate {
	var out []Candidate
	position := 0
	for _, b := range blocks {
		chunks := chunkPage(b.Text, cfg)
		for _, c := range chunks {
			out = append(out, Candidate{
				Text:         c.text,
				PageNumber:   b.PageNumber,
				SectionTitle: c.section,
				Position:     position,
			})
			position++
		}
	}
	return out
}

type pageChunk struct {
	text    string
	section string
}

// chunkPage implements the §4.2 split-preference order for a single page's
// text: section break → paragraph break → sentence break → hard cut.
func chunkPage(text string, cfg Config) []pageChunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	target := cfg.TargetSize
	if target <= 0 {
		target = 800
	}
	overlap := int(float64(target) * cfg.OverlapFrac)
	if overlap < 0 {
		overlap = 0
	}

	lines := strings.Split(text, "\n")
	lineStart := make([]int, len(lines))
	offset := 0
	for i, l := range lines {
		lineStart[i] = offset
		offset += utf8.RuneCountInString(l) + 1 // +1 for the stripped '\n'
	}

	var chunks []pageChunk
	start := 0
	for start < n {
		idealEnd := start + target
		if idealEnd >= n {
			chunks = append(chunks, pageChunk{
				text:    string(runes[start:n]),
				section: lastHeadingBefore(lines, lineStart, start),
			})
			break
		}

		end := bestBreak(runes, lines, lineStart, start, idealEnd, target)
		if end <= start {
			end = idealEnd
		}

		chunks = append(chunks, pageChunk{
			text:    string(runes[start:end]),
			section: lastHeadingBefore(lines, lineStart, start),
		})

		if end >= n {
			break
		}
		overlapLen := overlap
		if overlapLen > end-start {
			overlapLen = end - start
		}
		next := end - overlapLen
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// bestBreak searches a window around idealEnd for the highest-priority
// break point: a line starting a new heading (section break), a blank line
// (paragraph break), or a sentence terminator. It falls back to idealEnd
// (hard cut) when nothing better is found within the window.
func bestBreak(runes []rune, lines []string, lineStart []int, start, idealEnd, target int) int {
	windowSlack := target / 4
	if windowSlack < 20 {
		windowSlack = 20
	}
	lo := idealEnd - windowSlack
	if lo < start+target/2 {
		lo = start + target/2
	}
	hi := idealEnd + windowSlack
	if hi > len(runes) {
		hi = len(runes)
	}
	if lo < start {
		lo = start
	}
	if lo >= hi {
		return idealEnd
	}

	bestPos := -1
	bestKind := breakHard

	// Section break: a heading line whose start falls in [lo, hi].
	for i, l := range lines {
		if !isHeading(l) {
			continue
		}
		pos := lineStart[i]
		if pos > start && pos >= lo && pos <= hi {
			if breakSection > bestKind || (breakSection == bestKind && abs(pos-idealEnd) < abs(bestPos-idealEnd)) {
				bestKind = breakSection
				bestPos = pos
			}
		}
	}

	// Paragraph break: "\n\n" inside the window maps to a rune offset via
	// lineStart — a blank line's start is itself the candidate paragraph
	// boundary.
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			continue
		}
		pos := lineStart[i]
		if pos > start && pos >= lo && pos <= hi {
			if breakParagraph > bestKind || (breakParagraph == bestKind && abs(pos-idealEnd) < abs(bestPos-idealEnd)) {
				bestKind = breakParagraph
				bestPos = pos
			}
		}
	}

	// Sentence break: scan runes in the window for ". ", "! ", "? ".
	if bestKind < breakParagraph {
		for i := lo; i < hi-1 && i+1 < len(runes); i++ {
			if (runes[i] == '.' || runes[i] == '!' || runes[i] == '?') && runes[i+1] == ' ' {
				pos := i + 2
				if pos > start && pos <= hi {
					if breakSentence > bestKind || (breakSentence == bestKind && abs(pos-idealEnd) < abs(bestPos-idealEnd)) {
						bestKind = breakSentence
						bestPos = pos
					}
				}
			}
		}
	}

	if bestPos <= start {
		return idealEnd
	}
	return bestPos
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// lastHeadingBefore returns the nearest heading at or before the rune
// offset pos, using the line offset table built by chunkPage.
func lastHeadingBefore(lines []string, lineStart []int, pos int) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if lineStart[i] <= pos && isHeading(lines[i]) {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
