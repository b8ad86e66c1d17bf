// Package chat implements the Chat Orchestrator capability of spec §4.7:
// per-session state and the Server-Sent Events transport that streams a
// Coverage Agent turn's tokens, terminated by a structured trailer event
// carrying the verdict. Session bookkeeping follows the teacher's
// StreamingRAGService client-map pattern (sse-rag-service/main.go);
// turn backpressure is a per-session in-flight flag (a second concurrent
// turn for the same session is rejected, not queued) plus one cross-session
// compose semaphore, following its embedding/generation job-queue pattern.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/insurai/coverage-guardrail/internal/agent"
	"github.com/insurai/coverage-guardrail/internal/model"
)

// ErrPolicyMismatch is returned when a turn names a policy_id different
// from the one the session was created with. The orchestrator MUST reject
// such a turn rather than silently switching policies mid-session.
var ErrPolicyMismatch = errors.New("chat: session policy_id mismatch")

// ErrTurnInFlight is returned when a second turn arrives for a session
// that already has one streaming (the default in-flight limit is 1).
var ErrTurnInFlight = errors.New("chat: a turn is already in flight for this session")

// Turn is one request/response pair in a session's transcript.
type Turn struct {
	Utterance string
	Verdict   model.Verdict
	At        time.Time
}

// Session holds per-session state: the fixed policy_id and the turn
// history, kept purely for transcript replay — the core reasoning never
// reads back into History.
type Session struct {
	ID       string
	PolicyID string
	History  []Turn

	mu       sync.Mutex
	inFlight bool
}

// Orchestrator holds every active session behind a single RWMutex-guarded
// map, the same shape as the teacher's StreamingRAGService.clients map.
type Orchestrator struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	agent *agent.Agent

	// composeSem bounds the number of concurrent LLM compose streams
	// across all sessions (§5 cross-session backpressure).
	composeSem chan struct{}
}

// New builds an Orchestrator. maxConcurrentComposes bounds cross-session
// streaming backpressure; 0 means unbounded.
func New(a *agent.Agent, maxConcurrentComposes int) *Orchestrator {
	var sem chan struct{}
	if maxConcurrentComposes > 0 {
		sem = make(chan struct{}, maxConcurrentComposes)
	}
	return &Orchestrator{sessions: make(map[string]*Session), agent: a, composeSem: sem}
}

// StartSession creates (or returns the existing) session for sessionID,
// fixing its policy_id for the session's lifetime.
func (o *Orchestrator) StartSession(sessionID, policyID string) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if s, ok := o.sessions[sessionID]; ok {
		if s.PolicyID != policyID {
			return nil, ErrPolicyMismatch
		}
		return s, nil
	}
	s := &Session{ID: sessionID, PolicyID: policyID}
	o.sessions[sessionID] = s
	return s, nil
}

// Session looks up an existing session.
func (o *Orchestrator) Session(sessionID string) (*Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[sessionID]
	return s, ok
}

// Turn runs one Coverage Agent turn against session, streaming tokens to
// the returned channel and recording the resulting verdict in session
// history. It rejects the turn with ErrPolicyMismatch if policyID diverges
// from the session's fixed policy, and with ErrTurnInFlight if the session
// already has a turn streaming.
func (o *Orchestrator) Turn(ctx context.Context, session *Session, policyID, utterance string) (<-chan string, <-chan agent.Result, error) {
	if policyID != session.PolicyID {
		return nil, nil, ErrPolicyMismatch
	}

	session.mu.Lock()
	if session.inFlight {
		session.mu.Unlock()
		return nil, nil, ErrTurnInFlight
	}
	session.inFlight = true
	session.mu.Unlock()

	if o.composeSem != nil {
		select {
		case o.composeSem <- struct{}{}:
		case <-ctx.Done():
			session.mu.Lock()
			session.inFlight = false
			session.mu.Unlock()
			return nil, nil, ctx.Err()
		}
	}

	rawTokens, rawResult := o.agent.Run(ctx, policyID, utterance)

	tokens := make(chan string, 16)
	result := make(chan agent.Result, 1)

	go func() {
		defer close(tokens)
		defer close(result)
		defer func() {
			session.mu.Lock()
			session.inFlight = false
			session.mu.Unlock()
			if o.composeSem != nil {
				<-o.composeSem
			}
		}()

		for tok := range rawTokens {
			tokens <- tok
		}
		res := <-rawResult
		if res.Err == nil {
			session.mu.Lock()
			session.History = append(session.History, Turn{Utterance: utterance, Verdict: res.Verdict, At: time.Now()})
			session.mu.Unlock()
		}
		result <- res
	}()

	return tokens, result, nil
}

// EndSession drops a session's state.
func (o *Orchestrator) EndSession(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, sessionID)
}
