// Package extractor turns document bytes into an ordered sequence of text
// blocks with page and position provenance, per spec §4.1. The concrete PDF
// parsing / image OCR backend is out of scope (spec §1); this package
// exposes the capability interface and two adapters that each produce the
// same TextBlock shape.
package extractor

import (
	"context"
	"fmt"
)

// TextBlock is one unit of extracted text, in reading order within its
// page. Page boundaries are preserved as block boundaries.
type TextBlock struct {
	Text         string
	PageNumber   int
	SectionHint  string
}

// FailedPage records a page that produced no usable text from either
// strategy, per the ExtractionFailed error kind of §7. The pipeline treats
// these as holes, not fatal errors.
type FailedPage struct {
	PageNumber int
	Cause      error
}

// Result is the outcome of extracting one document: the blocks that were
// recovered, plus any pages that failed outright.
type Result struct {
	Blocks []TextBlock
	Failed []FailedPage
}

// PageSource supplies the raw material for one page: a native text layer
// (may be empty) and, if the native layer doesn't cover enough of the page,
// raw image bytes for an OCR fallback.
type PageSource struct {
	PageNumber     int
	NativeText     string
	NativeCoverage float64 // fraction of page area covered by the text layer, [0,1]
	ImageBytes     []byte  // populated only when native coverage is insufficient
}

// OCR is the capability interface for the image-OCR fallback strategy.
// Concrete backends (Tesseract, cloud OCR, a subprocess worker) live behind
// this interface; see internal/ocrproc for one adapter.
type OCR interface {
	RecognizeText(ctx context.Context, documentID string, pageNumber int, imageBytes []byte) (string, error)
}

// MinNativeCoverage is the minimum fraction of page area a machine-readable
// text layer must cover before the native fast path is trusted, per §4.1.
const MinNativeCoverage = 0.6

// Extractor implements the §4.1 contract: choose native-text extraction
// when coverage is sufficient, else fall back to OCR, and emit a uniform
// TextBlock stream.
type Extractor struct {
	ocr OCR
}

// New builds an Extractor. ocr may be nil if no OCR fallback is configured;
// pages whose native coverage is insufficient then become FailedPage
// entries instead of being recovered.
func New(ocr OCR) *Extractor {
	return &Extractor{ocr: ocr}
}

// Extract runs the extraction strategy choice per page and returns the
// ordered block stream plus any pages that could not be recovered.
func (e *Extractor) Extract(ctx context.Context, documentID string, pages []PageSource) Result {
	var res Result
	for _, p := range pages {
		if p.NativeCoverage >= MinNativeCoverage && p.NativeText != "" {
			res.Blocks = append(res.Blocks, TextBlock{
				Text:       p.NativeText,
				PageNumber: p.PageNumber,
			})
			continue
		}

		if e.ocr == nil || len(p.ImageBytes) == 0 {
			res.Failed = append(res.Failed, FailedPage{
				PageNumber: p.PageNumber,
				Cause:      fmt.Errorf("no native text and no OCR fallback available"),
			})
			continue
		}

		text, err := e.ocr.RecognizeText(ctx, documentID, p.PageNumber, p.ImageBytes)
		if err != nil || text == "" {
			cause := err
			if cause == nil {
				cause = fmt.Errorf("OCR produced no text")
			}
			res.Failed = append(res.Failed, FailedPage{PageNumber: p.PageNumber, Cause: cause})
			continue
		}

		res.Blocks = append(res.Blocks, TextBlock{
			Text:       text,
			PageNumber: p.PageNumber,
		})
	}
	return res
}
