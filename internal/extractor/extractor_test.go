package extractor

import (
	"context"
	"errors"
	"testing"
)

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) RecognizeText(ctx context.Context, documentID string, pageNumber int, imageBytes []byte) (string, error) {
	return f.text, f.err
}

func TestExtract_NativeFastPath(t *testing.T) {
	e := New(nil)
	res := e.Extract(context.Background(), "doc1", []PageSource{
		{PageNumber: 1, NativeText: "hello world", NativeCoverage: 0.9},
	})
	if len(res.Blocks) != 1 || res.Blocks[0].Text != "hello world" {
		t.Fatalf("expected native fast path to produce one block, got %+v", res)
	}
	if len(res.Failed) != 0 {
		t.Fatalf("expected no failures, got %+v", res.Failed)
	}
}

func TestExtract_FallsBackToOCR(t *testing.T) {
	e := New(&fakeOCR{text: "scanned text"})
	res := e.Extract(context.Background(), "doc1", []PageSource{
		{PageNumber: 2, NativeCoverage: 0.1, ImageBytes: []byte{1, 2, 3}},
	})
	if len(res.Blocks) != 1 || res.Blocks[0].Text != "scanned text" {
		t.Fatalf("expected OCR fallback to produce one block, got %+v", res)
	}
}

func TestExtract_NoRecoveryIsFailedPageNotFatal(t *testing.T) {
	e := New(&fakeOCR{err: errors.New("ocr down")})
	res := e.Extract(context.Background(), "doc1", []PageSource{
		{PageNumber: 3, NativeCoverage: 0.1, ImageBytes: []byte{1}},
		{PageNumber: 4, NativeText: "page four", NativeCoverage: 0.95},
	})
	if len(res.Failed) != 1 || res.Failed[0].PageNumber != 3 {
		t.Fatalf("expected page 3 to be a recorded failure, got %+v", res.Failed)
	}
	if len(res.Blocks) != 1 || res.Blocks[0].PageNumber != 4 {
		t.Fatalf("expected page 4 to still be extracted despite page 3 failing, got %+v", res.Blocks)
	}
}

func TestExtract_NoOCRConfiguredRecordsFailure(t *testing.T) {
	e := New(nil)
	res := e.Extract(context.Background(), "doc1", []PageSource{
		{PageNumber: 5, NativeCoverage: 0.0},
	})
	if len(res.Failed) != 1 {
		t.Fatalf("expected a failed page when no OCR is configured, got %+v", res)
	}
}
