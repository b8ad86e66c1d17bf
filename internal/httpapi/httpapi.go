// Package httpapi binds the Coverage Agent, Chat Orchestrator and ingestion
// pipeline to the two external interfaces of §6: an ingestion endpoint and
// an SSE query endpoint, plus the ambient healthz/metrics endpoints. Routing
// and the SSE transport follow the teacher's StreamingRAGService
// (sse-rag-service/main.go): gin.New() with explicit Logger/Recovery
// middleware, a manual CORS middleware, and hand-written "event:"/"data:"
// SSE frames flushed after every write rather than a third-party SSE
// library.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/insurai/coverage-guardrail/internal/chat"
	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/ingest"
	"github.com/insurai/coverage-guardrail/internal/observability/audit"
	"github.com/insurai/coverage-guardrail/internal/observability/metrics"
	"github.com/insurai/coverage-guardrail/internal/store"
)

// Server bundles every dependency the HTTP layer needs.
type Server struct {
	orchestrator *chat.Orchestrator
	pipeline     *ingest.Pipeline
	queue        *ingest.Queue
	store        store.ChunkStore
	metrics      *metrics.Metrics
	registry     *prometheus.Registry
	audit        *audit.Sink
	logger       *zap.Logger

	// asyncThreshold is the page count at or above which an ingest request
	// is queued instead of run inline (§6 sync-vs-async path).
	asyncThreshold int
}

// New builds a Server. queue may be nil to disable the async ingestion path.
func New(orch *chat.Orchestrator, pipeline *ingest.Pipeline, queue *ingest.Queue, st store.ChunkStore, m *metrics.Metrics, registry *prometheus.Registry, auditSink *audit.Sink, logger *zap.Logger, asyncThreshold int) *Server {
	return &Server{
		orchestrator: orch, pipeline: pipeline, queue: queue, store: st,
		metrics: m, registry: registry, audit: auditSink, logger: logger,
		asyncThreshold: asyncThreshold,
	}
}

// Router builds the gin engine with every route bound, matching the
// teacher's gin.New()+explicit-middleware convention rather than
// gin.Default().
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware)

	api := r.Group("/api/v1")
	{
		api.POST("/policies/:policy_id/ingest", s.handleIngest)
		api.GET("/ingest-jobs/:job_id", s.handleIngestJobStatus)
		api.DELETE("/policies/:policy_id", s.handleDeletePolicy)
		api.POST("/sessions/:session_id/turns", s.handleTurn)
	}

	r.GET("/healthz", s.handleHealthz)
	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(s.registry)))
	}

	return r
}

func corsMiddleware(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "coverage-guardrail"})
}

// codeToStatus maps a coverageerr.Code to an HTTP status, per §7's
// propagation policy: a stable code, never opaque text.
func codeToStatus(code coverageerr.Code) int {
	switch code {
	case coverageerr.CodeChunkNotFound:
		return http.StatusNotFound
	case coverageerr.CodeStoreConflict:
		return http.StatusConflict
	case coverageerr.CodePolicyIsolationBreach, coverageerr.CodeEmbeddingDimMismatch:
		return http.StatusInternalServerError
	case coverageerr.CodeCancelled:
		return http.StatusGatewayTimeout
	case coverageerr.CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	if ce, ok := coverageerr.As(err); ok {
		c.JSON(codeToStatus(ce.Code()), gin.H{"code": string(ce.Code()), "error": ce.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL", "error": err.Error()})
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Sugar().Infof(format, args...)
	}
}
