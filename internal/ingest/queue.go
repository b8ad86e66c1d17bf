package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/insurai/coverage-guardrail/internal/extractor"
	"github.com/insurai/coverage-guardrail/internal/xjson"
)

// jobListKey is the Redis list BLPOP'd by the worker loop, the same queue
// shape as the teacher's "ingest:jobs" list (legal-gateway/worker.go).
const jobListKey = "insurai:ingest:jobs"

func statusKey(jobID string) string { return "insurai:ingest:status:" + jobID }

// jobStatusTTL bounds how long a completed or failed job's status stays
// queryable before Redis reclaims it.
const jobStatusTTL = 24 * time.Hour

// JobState is the closed set of states an async ingestion job moves through.
type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Job is the payload queued for the async worker loop: everything Run needs
// to process a document, plus the pages the requester already staged.
type Job struct {
	ID         string                 `json:"id"`
	PolicyID   string                 `json:"policy_id"`
	DocumentID string                 `json:"document_id"`
	Pages      []extractor.PageSource `json:"pages"`
	Created    time.Time              `json:"created"`
}

// Status is what JobStatus polling returns: the job's current state plus
// its result once it reaches a terminal state.
type Status struct {
	JobID     string    `json:"job_id"`
	State     JobState  `json:"state"`
	Error     string    `json:"error,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrJobNotFound is returned by JobStatus once a job's status key has
// expired or never existed.
var ErrJobNotFound = errors.New("ingest: job not found")

// Queue is the Redis-backed async ingestion job queue of spec §6: large
// documents are enqueued here instead of processed inline, and the caller
// polls JobStatus for completion.
type Queue struct {
	rdb      *redis.Client
	pipeline *Pipeline
}

// NewQueue builds a Queue bound to rdb and the pipeline used to process
// each job once popped off the list.
func NewQueue(rdb *redis.Client, p *Pipeline) *Queue {
	return &Queue{rdb: rdb, pipeline: p}
}

// Enqueue pushes a new job onto the list and records its initial pending
// status, returning the generated job id.
func (q *Queue) Enqueue(ctx context.Context, policyID, documentID string, pages []extractor.PageSource) (string, error) {
	job := Job{ID: uuid.NewString(), PolicyID: policyID, DocumentID: documentID, Pages: pages, Created: time.Now()}

	if err := q.setStatus(ctx, Status{JobID: job.ID, State: JobPending, UpdatedAt: time.Now()}); err != nil {
		return "", fmt.Errorf("ingest: record job status: %w", err)
	}

	body, err := xjson.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("ingest: marshal job: %w", err)
	}
	if err := q.rdb.RPush(ctx, jobListKey, body).Err(); err != nil {
		return "", fmt.Errorf("ingest: enqueue job: %w", err)
	}
	return job.ID, nil
}

// JobStatus returns the current status of a previously enqueued job.
func (q *Queue) JobStatus(ctx context.Context, jobID string) (Status, error) {
	raw, err := q.rdb.Get(ctx, statusKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, ErrJobNotFound
	}
	if err != nil {
		return Status{}, fmt.Errorf("ingest: read job status: %w", err)
	}
	var s Status
	if err := xjson.Unmarshal(raw, &s); err != nil {
		return Status{}, fmt.Errorf("ingest: unmarshal job status: %w", err)
	}
	return s, nil
}

func (q *Queue) setStatus(ctx context.Context, s Status) error {
	body, err := xjson.Marshal(s)
	if err != nil {
		return err
	}
	return q.rdb.Set(ctx, statusKey(s.JobID), body, jobStatusTTL).Err()
}

// RunWorker blocks on BLPOP against the job list until ctx is cancelled,
// running each job through the bound pipeline as it arrives. It never
// returns a job-level failure as its own error; those land in the job's
// status record instead, polled separately via JobStatus.
func (q *Queue) RunWorker(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := q.rdb.BLPop(ctx, 5*time.Second, jobListKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var job Job
		if err := xjson.Unmarshal([]byte(res[1]), &job); err != nil {
			continue
		}

		q.processJob(ctx, job)
	}
}

func (q *Queue) processJob(ctx context.Context, job Job) {
	_ = q.setStatus(ctx, Status{JobID: job.ID, State: JobProcessing, UpdatedAt: time.Now()})

	result, err := q.pipeline.Run(ctx, job.PolicyID, job.DocumentID, job.Pages)
	if err != nil {
		_ = q.setStatus(ctx, Status{JobID: job.ID, State: JobFailed, Error: err.Error(), UpdatedAt: time.Now()})
		return
	}

	_ = q.setStatus(ctx, Status{JobID: job.ID, State: JobCompleted, Result: &result, UpdatedAt: time.Now()})
}
