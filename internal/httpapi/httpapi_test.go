package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/insurai/coverage-guardrail/internal/agent"
	"github.com/insurai/coverage-guardrail/internal/chat"
	"github.com/insurai/coverage-guardrail/internal/chunker"
	"github.com/insurai/coverage-guardrail/internal/embedding"
	"github.com/insurai/coverage-guardrail/internal/extractor"
	"github.com/insurai/coverage-guardrail/internal/ingest"
	"github.com/insurai/coverage-guardrail/internal/llm"
	"github.com/insurai/coverage-guardrail/internal/model"
	"github.com/insurai/coverage-guardrail/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.ChunkStore) {
	t.Helper()
	st := store.NewMemStore()
	_, err := st.PutBatch(context.Background(), "p1", []model.NewChunk{
		{Text: "Coverage includes windshield repair.", Kind: model.KindInclusion, Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	emb := embedding.NewNullEmbedder(2)
	prov := llm.NewNullLLM()
	a := agent.New(st, emb, prov, agent.DefaultConfig(), nil)
	orch := chat.New(a, 0)

	ex := extractor.New(nil)
	cl := chunker.New(nil)
	pipeline := ingest.New(ex, chunker.DefaultConfig(), cl, emb, st)

	srv := New(orch, pipeline, nil, st, nil, nil, nil, nil, 1000)
	return srv, st
}

func TestHandleIngest_SynchronousSmallDocument(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Router()

	body := `{"document_id":"doc-1","pages":[{"page_number":1,"native_text":"Coverage includes brake pads.","native_coverage":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/policies/p2/ingest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ingestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ChunkCount == 0 {
		t.Fatal("expected at least one chunk ingested")
	}
}

func TestHandleIngest_RejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/policies/p2/ingest", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleDeletePolicy_RemovesChunks(t *testing.T) {
	srv, st := newTestServer(t)
	r := srv.Router()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/policies/p1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	count, err := st.Count(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected policy chunks purged, got %d remaining", count)
	}
}

func TestHandleTurn_StreamsTokensThenTrailer(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Router()

	body := `{"policy_id":"p1","utterance":"Is windshield repair covered?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-1/turns", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}
	out := w.Body.String()
	if !strings.Contains(out, "event: trailer") && !strings.Contains(out, "event: error") {
		t.Fatalf("expected a trailer or error event, got:\n%s", out)
	}
}

func TestHandleTurn_RejectsPolicyMismatchOnSecondCall(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Router()

	first := `{"policy_id":"p1","utterance":"Is windshield repair covered?"}`
	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-2/turns", strings.NewReader(first))
	req1.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(httptest.NewRecorder(), req1)

	second := `{"policy_id":"different-policy","utterance":"Is anything covered?"}`
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/sess-2/turns", strings.NewReader(second))
	req2.Header.Set("Content-Type", "application/json")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)

	if w2.Code != http.StatusConflict {
		t.Fatalf("expected 409 on policy mismatch, got %d: %s", w2.Code, w2.Body.String())
	}
}

func TestHandleIngestJobStatus_NotFoundWhenQueueDisabled(t *testing.T) {
	srv, _ := newTestServer(t)
	r := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ingest-jobs/unknown", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
