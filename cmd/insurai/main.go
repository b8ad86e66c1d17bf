// Command insurai runs the coverage guardrail HTTP service: ingestion,
// SSE query turns, and the async ingestion worker loop, wired from
// environment configuration the way the teacher's service binaries
// (sse-rag-service, legal-gateway) build their dependency graph directly
// in main rather than through a DI framework.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/insurai/coverage-guardrail/internal/agent"
	"github.com/insurai/coverage-guardrail/internal/chat"
	"github.com/insurai/coverage-guardrail/internal/chunker"
	"github.com/insurai/coverage-guardrail/internal/config"
	"github.com/insurai/coverage-guardrail/internal/coverageerr"
	"github.com/insurai/coverage-guardrail/internal/embedding"
	"github.com/insurai/coverage-guardrail/internal/extractor"
	"github.com/insurai/coverage-guardrail/internal/httpapi"
	"github.com/insurai/coverage-guardrail/internal/ingest"
	"github.com/insurai/coverage-guardrail/internal/llm"
	"github.com/insurai/coverage-guardrail/internal/observability/audit"
	"github.com/insurai/coverage-guardrail/internal/observability/metrics"
	obslog "github.com/insurai/coverage-guardrail/internal/observability/log"
	"github.com/insurai/coverage-guardrail/internal/observability/tracing"
	"github.com/insurai/coverage-guardrail/internal/store"
)

func main() {
	cfg := config.Load()

	logger := obslog.New(cfg.ServiceName)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	auditSink := audit.New(os.Getenv("LOKI_ENDPOINT"), map[string]string{"service": cfg.ServiceName}, logger)

	chunkStore := mustBuildStore(ctx, cfg, logger)

	embedder := embedding.Provider(embedding.NewHTTPEmbedder(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingDim, cfg.RetryBase(), cfg.RetryMaxTries))
	embedder = embedding.NewCached(embedder, 10_000)

	llmProvider := llm.NewHTTPLLM(cfg.LLMURL, cfg.LLMModel, cfg.RetryBase(), cfg.RetryMaxTries)

	classifier := chunker.New(llmProvider)
	classifier.OnUncertain(func(e *coverageerr.Error) {
		m.ClassificationOverrides.Inc()
		auditSink.Record(ctx, auditEntry(e.Error()))
	})

	ocr := buildOCR(cfg)
	ex := extractor.New(ocr)

	pipeline := ingest.New(ex, chunker.Config{TargetSize: cfg.ChunkSize, OverlapFrac: cfg.ChunkOverlap}, classifier, embedder, chunkStore)
	pipeline.OnExtractionFailed(func(e *coverageerr.Error) {
		m.ExtractionFailures.Inc()
		auditSink.Record(ctx, auditEntry(e.Error()))
	})
	pipeline.OnClassifyError(func(err error) {
		logger.Warn("classification refiner failed", zap.Error(err))
	})

	var queue *ingest.Queue
	if rdb := maybeBuildRedis(cfg); rdb != nil {
		queue = ingest.NewQueue(rdb, pipeline)
		go func() {
			if err := queue.RunWorker(ctx); err != nil && ctx.Err() == nil {
				logger.Error("ingest worker loop exited", zap.Error(err))
			}
		}()
	}

	agentCfg := agent.Config{
		KExclusion: cfg.KExclusion, KInclusion: cfg.KInclusion, KFinancial: cfg.KFinancial,
		TauExclusion: cfg.TauExclusion, TauInclusion: cfg.TauInclusion,
		FanoutLimit: cfg.FanoutLimit, RetryBase: cfg.RetryBase(), RetryMaxTries: cfg.RetryMaxTries,
	}
	a := agent.New(chunkStore, embedder, llmProvider, agentCfg, stepInstrumentation{m})
	a.OnUncertain(func(e *coverageerr.Error) {
		auditSink.Record(ctx, auditEntry(e.Error()))
	})

	orchestrator := chat.New(a, cfg.FanoutLimit*4)

	server := httpapi.New(orchestrator, pipeline, queue, chunkStore, m, registry, auditSink, logger, 50)

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router()}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func mustBuildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) store.ChunkStore {
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Warn("postgres unavailable, falling back to in-memory store", zap.Error(err))
		return store.NewMemStore()
	}
	pg := store.NewPGStore(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		logger.Warn("schema setup failed, falling back to in-memory store", zap.Error(err))
		return store.NewMemStore()
	}
	return pg
}

func maybeBuildRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
}

func buildOCR(cfg *config.Config) extractor.OCR {
	if cfg.OCRWorkerPath == "" {
		return nil
	}
	return extractor.NewSubprocessOCR(cfg.OCRWorkerPath, 30*time.Second)
}

func auditEntry(line string) audit.Entry {
	return audit.Entry{Timestamp: time.Now(), Line: line, Labels: map[string]string{"component": "guardrail"}}
}

type stepInstrumentation struct{ m *metrics.Metrics }

func (s stepInstrumentation) StepDuration(step agent.Step, d time.Duration) {
	s.m.GuardrailStepDuration.WithLabelValues(string(step)).Observe(d.Seconds())
}

func (s stepInstrumentation) StepOutcome(step agent.Step, outcome string) {
	s.m.GuardrailStepOutcome.WithLabelValues(string(step), outcome).Inc()
}
