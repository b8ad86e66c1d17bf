package extractor

import (
	"context"
	"time"

	"github.com/insurai/coverage-guardrail/internal/ocrproc"
)

// SubprocessOCR implements OCR by shelling out to an external worker
// executable for each page, grounded on ocrproc.RunPage.
type SubprocessOCR struct {
	ExePath string
	Timeout time.Duration
}

// NewSubprocessOCR builds a SubprocessOCR. If exePath is empty, FindWorkerPath
// is used to discover one from the environment or conventional locations.
func NewSubprocessOCR(exePath string, timeout time.Duration) *SubprocessOCR {
	if exePath == "" {
		exePath = ocrproc.FindWorkerPath()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SubprocessOCR{ExePath: exePath, Timeout: timeout}
}

func (s *SubprocessOCR) RecognizeText(ctx context.Context, documentID string, pageNumber int, imageBytes []byte) (string, error) {
	result, err := ocrproc.RunPage(ctx, s.ExePath, ocrproc.PageRequest{
		DocumentID: documentID,
		PageNumber: pageNumber,
		ImageBytes: imageBytes,
	}, s.Timeout)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
