package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/model"
	"github.com/insurai/coverage-guardrail/internal/xjson"
)

// generateRequest/Response mirror Ollama's /api/generate contract, the same
// shape cognitive-microservice.go's getOllamaSummary speaks.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// HTTPLLM calls a configurable Ollama-shaped /api/generate endpoint,
// decoding structured calls against declared schemas and streaming
// Compose's tokens as they arrive off the wire.
type HTTPLLM struct {
	baseURL    string
	model      string
	client     *http.Client
	cb         *circuitBreaker
	retryBase  time.Duration
	maxRetries int
}

// NewHTTPLLM builds an HTTPLLM.
func NewHTTPLLM(baseURL, model string, retryBase time.Duration, maxRetries int) *HTTPLLM {
	return &HTTPLLM{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		client:     &http.Client{Timeout: 60 * time.Second},
		cb:         newCircuitBreaker(5, 30*time.Second),
		retryBase:  retryBase,
		maxRetries: maxRetries,
	}
}

// generate performs one non-streaming prompt/response round trip with
// retry and circuit-breaker gating, returning the concatenated response.
func (h *HTTPLLM) generate(ctx context.Context, prompt string) (string, error) {
	if !h.cb.allow() {
		return "", coverageerr.ProviderUnavailable("llm", fmt.Errorf("circuit open"))
	}

	var out string
	op := func(attempt int) error {
		req := generateRequest{Model: h.model, Prompt: prompt}
		payload, err := xjson.Marshal(req)
		if err != nil {
			return err
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/generate", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := h.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("generate status %d: %s", resp.StatusCode, string(body))
		}

		var sb strings.Builder
		dec := xjson.NewDecoder(resp.Body)
		for dec.More() {
			var chunk generateChunk
			if err := dec.Decode(&chunk); err != nil {
				return err
			}
			sb.WriteString(chunk.Response)
		}
		out = strings.TrimSpace(sb.String())
		return nil
	}

	err := withRetry(ctx, h.maxRetries, h.retryBase, op)
	if err != nil {
		h.cb.onFailure()
		return "", coverageerr.ProviderUnavailable("llm", err)
	}
	h.cb.onSuccess()
	return out, nil
}

func (h *HTTPLLM) ClassifyChunk(ctx context.Context, text, heading string) (model.Kind, error) {
	prompt := fmt.Sprintf(
		"Classify this policy clause into exactly one of EXCLUSION, INCLUSION, DEFINITION, LIMITATION, PROCEDURE, GENERAL. Heading: %q. Respond with only the label.\n\n%s",
		heading, text)
	raw, err := h.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return model.Kind(strings.ToUpper(strings.TrimSpace(raw))), nil
}

func (h *HTTPLLM) EvaluateExclusion(ctx context.Context, chunkText, item string) (ExclusionVerdict, error) {
	prompt := fmt.Sprintf(
		"Policy clause:\n%s\n\nDoes this clause exclude coverage for %q? Respond as JSON: {\"excluded\":bool,\"confidence\":0-1,\"reason\":string}",
		chunkText, item)
	raw, err := h.generate(ctx, prompt)
	if err != nil {
		return ExclusionVerdict{}, err
	}
	var v ExclusionVerdict
	if err := xjson.Unmarshal([]byte(raw), &v); err != nil {
		return ExclusionVerdict{}, fmt.Errorf("non-conforming exclusion answer: %w", err)
	}
	return v, nil
}

func (h *HTTPLLM) EvaluateInclusion(ctx context.Context, chunkText, item string) (InclusionVerdict, error) {
	prompt := fmt.Sprintf(
		"Policy clause:\n%s\n\nDoes this clause cover %q? Respond as JSON: {\"covered\":bool,\"confidence\":0-1,\"reason\":string}",
		chunkText, item)
	raw, err := h.generate(ctx, prompt)
	if err != nil {
		return InclusionVerdict{}, err
	}
	var v InclusionVerdict
	if err := xjson.Unmarshal([]byte(raw), &v); err != nil {
		return InclusionVerdict{}, fmt.Errorf("non-conforming inclusion answer: %w", err)
	}
	return v, nil
}

func (h *HTTPLLM) ExtractFinancials(ctx context.Context, chunkText string) (model.Financials, error) {
	prompt := fmt.Sprintf(
		"Policy clause:\n%s\n\nExtract any deductible and coverage cap amounts. Respond as JSON: {\"deductible\":number|null,\"cap\":number|null,\"conditions\":string}",
		chunkText)
	raw, err := h.generate(ctx, prompt)
	if err != nil {
		return model.Financials{}, err
	}
	var v model.Financials
	if err := xjson.Unmarshal([]byte(raw), &v); err != nil {
		return model.Financials{}, fmt.Errorf("non-conforming financials answer: %w", err)
	}
	return v, nil
}

func (h *HTTPLLM) Compose(ctx context.Context, cc ComposeContext) (<-chan string, <-chan error) {
	tokens := make(chan string, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(tokens)

		if !h.cb.allow() {
			errc <- coverageerr.ProviderUnavailable("llm", fmt.Errorf("circuit open"))
			return
		}

		req := generateRequest{Model: h.model, Prompt: composePrompt(cc)}
		payload, err := xjson.Marshal(req)
		if err != nil {
			errc <- err
			return
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/generate", bytes.NewReader(payload))
		if err != nil {
			errc <- err
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := h.client.Do(httpReq)
		if err != nil {
			h.cb.onFailure()
			errc <- coverageerr.ProviderUnavailable("llm", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			h.cb.onFailure()
			errc <- coverageerr.ProviderUnavailable("llm", fmt.Errorf("compose status %d", resp.StatusCode))
			return
		}

		dec := xjson.NewDecoder(resp.Body)
		for dec.More() {
			var chunk generateChunk
			if err := dec.Decode(&chunk); err != nil {
				h.cb.onFailure()
				errc <- err
				return
			}
			if chunk.Response == "" {
				continue
			}
			select {
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			case tokens <- chunk.Response:
			}
		}
		h.cb.onSuccess()
	}()

	return tokens, errc
}

func composePrompt(cc ComposeContext) string {
	var sb strings.Builder
	sb.WriteString("Answer whether the policy covers: ")
	sb.WriteString(cc.Item)
	sb.WriteString(fmt.Sprintf("\nPreliminary status: %s (confidence %.2f)\n", cc.Status, cc.Confidence))
	sb.WriteString("Use only the following citations; do not claim anything they do not support:\n")
	for i, c := range cc.Citations {
		sb.WriteString(fmt.Sprintf("[%d] page %d (%s): %s\n", i+1, c.Page, c.Kind, c.Quote))
	}
	return sb.String()
}
