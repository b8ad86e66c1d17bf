package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/xjson"
)

// ollamaEmbedRequest/Response mirror the Ollama embeddings API contract, the
// same shape the teacher's EmbeddingService speaks to (go-enhanced-rag-service).
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// HTTPEmbedder calls a configurable Ollama-shaped embedding endpoint, with
// exponential backoff retry on any failed call (transport error, non-200
// status or undecodable body).
type HTTPEmbedder struct {
	baseURL    string
	model      string
	dims       int
	client     *http.Client
	retryBase  time.Duration
	maxRetries int
}

// NewHTTPEmbedder builds an HTTPEmbedder. baseURL should not include the
// /api/embeddings suffix.
func NewHTTPEmbedder(baseURL, model string, dims int, retryBase time.Duration, maxRetries int) *HTTPEmbedder {
	return &HTTPEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dims:       dims,
		client:     &http.Client{Timeout: 30 * time.Second},
		retryBase:  retryBase,
		maxRetries: maxRetries,
	}
}

func (h *HTTPEmbedder) Dimensions() int { return h.dims }

func (h *HTTPEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	req := ollamaEmbedRequest{Model: h.model, Prompt: text}

	var lastErr error
	for attempt := 0; attempt < h.maxRetries; attempt++ {
		v, err := h.call(ctx, req)
		if err == nil {
			if len(v) != h.dims {
				return nil, coverageerr.EmbeddingDimensionMismatch(h.dims, len(v))
			}
			return v, nil
		}
		lastErr = err

		if attempt < h.maxRetries-1 {
			delay := h.retryBase * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return nil, coverageerr.Cancelled(ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return nil, coverageerr.ProviderUnavailable("embedding", lastErr)
}

func (h *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.EmbedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *HTTPEmbedder) call(ctx context.Context, reqBody ollamaEmbedRequest) ([]float32, error) {
	payload, err := xjson.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out ollamaEmbedResponse
	if err := xjson.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}
	return out.Embedding, nil
}
