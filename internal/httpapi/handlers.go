package httpapi

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/extractor"
	"github.com/insurai/coverage-guardrail/internal/xjson"
)

// ingestPageRequest is one page of the ingest request body. NativeText is
// the page's plain text layer; ImageBytes, when present, is the base64-
// encoded page image handed to OCR if the native text falls short.
type ingestPageRequest struct {
	PageNumber     int     `json:"page_number"`
	NativeText     string  `json:"native_text"`
	NativeCoverage float64 `json:"native_coverage"`
	ImageBytes     string  `json:"image_bytes,omitempty"`
}

type ingestRequest struct {
	DocumentID string              `json:"document_id" binding:"required"`
	Pages      []ingestPageRequest `json:"pages" binding:"required"`
}

type ingestResponse struct {
	PolicyID    string `json:"policy_id"`
	ChunkCount  int    `json:"chunk_count,omitempty"`
	Pages       int    `json:"pages,omitempty"`
	JobID       string `json:"job_id,omitempty"`
	FailedPages int    `json:"failed_pages,omitempty"`
}

func (s *Server) handleIngest(c *gin.Context) {
	policyID := c.Param("policy_id")

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "error": err.Error()})
		return
	}

	pages := make([]extractor.PageSource, 0, len(req.Pages))
	for _, p := range req.Pages {
		ps := extractor.PageSource{PageNumber: p.PageNumber, NativeText: p.NativeText, NativeCoverage: p.NativeCoverage}
		if p.ImageBytes != "" {
			raw, err := base64.StdEncoding.DecodeString(p.ImageBytes)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "error": fmt.Sprintf("page %d: invalid image_bytes: %v", p.PageNumber, err)})
				return
			}
			ps.ImageBytes = raw
		}
		pages = append(pages, ps)
	}

	if s.queue != nil && len(pages) >= s.asyncThreshold {
		jobID, err := s.queue.Enqueue(c.Request.Context(), policyID, req.DocumentID, pages)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, ingestResponse{PolicyID: policyID, JobID: jobID})
		return
	}

	start := time.Now()
	res, err := s.pipeline.Run(c.Request.Context(), policyID, req.DocumentID, pages)
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.IngestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ingestResponse{
		PolicyID: res.PolicyID, ChunkCount: res.ChunkCount, Pages: res.Pages, FailedPages: len(res.FailedPages),
	})
}

func (s *Server) handleIngestJobStatus(c *gin.Context) {
	if s.queue == nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": "async ingestion is not enabled"})
		return
	}
	jobID := c.Param("job_id")
	status, err := s.queue.JobStatus(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": "NOT_FOUND", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleDeletePolicy(c *gin.Context) {
	policyID := c.Param("policy_id")
	if err := s.store.DeletePolicy(c.Request.Context(), policyID); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type turnRequest struct {
	PolicyID  string `json:"policy_id" binding:"required"`
	Utterance string `json:"utterance" binding:"required"`
}

// handleTurn streams one Coverage Agent turn over SSE: a "token" event per
// composer token, terminated by a "trailer" event carrying the structured
// verdict, or by an "error" event carrying the error message (plus its
// stable code for coverageerr errors) on failure. Framing follows
// the teacher's sendSSEEvent (sse-rag-service/main.go): manual
// "event:"/"data:" lines flushed after every write.
func (s *Server) handleTurn(c *gin.Context) {
	sessionID := c.Param("session_id")

	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "BAD_REQUEST", "error": err.Error()})
		return
	}

	session, err := s.orchestrator.StartSession(sessionID, req.PolicyID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"code": "POLICY_MISMATCH", "error": err.Error()})
		return
	}

	tokens, result, err := s.orchestrator.Turn(c.Request.Context(), session, req.PolicyID, req.Utterance)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"code": "TURN_REJECTED", "error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	seq := 0
	for tok := range tokens {
		writeSSEEvent(c, fmt.Sprintf("%s-%d", sessionID, seq), "token", gin.H{"text": tok})
		c.Writer.Flush()
		seq++
	}

	res := <-result
	if res.Err != nil {
		body := gin.H{"error": res.Err.Error()}
		if ce, ok := coverageerr.As(res.Err); ok {
			body["code"] = string(ce.Code())
		}
		writeSSEEvent(c, fmt.Sprintf("%s-trailer", sessionID), "error", body)
	} else {
		writeSSEEvent(c, fmt.Sprintf("%s-trailer", sessionID), "trailer", res.Verdict)
	}
	c.Writer.Flush()
}

func writeSSEEvent(c *gin.Context, id, eventType string, data any) {
	body, err := xjson.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "id: %s\n", id)
	fmt.Fprintf(c.Writer, "event: %s\n", eventType)
	fmt.Fprintf(c.Writer, "data: %s\n\n", body)
}
