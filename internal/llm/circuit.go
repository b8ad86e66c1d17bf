package llm

import (
	"context"
	"sync"
	"time"
)

// circuitState mirrors the three-state breaker the teacher runs in front of
// its Ollama calls (cognitive-microservice.go).
type circuitState int

const (
	cbClosed circuitState = iota
	cbOpen
	cbHalfOpen
)

// circuitBreaker trips after a run of consecutive failures and stays open
// for cooldown before allowing a single half-open trial call through.
type circuitBreaker struct {
	mu        sync.Mutex
	state     circuitState
	failCount int
	openedAt  time.Time

	threshold int
	cooldown  time.Duration
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, cooldown: cooldown}
}

func (c *circuitBreaker) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case cbClosed:
		return true
	case cbOpen:
		if time.Since(c.openedAt) > c.cooldown {
			c.state = cbHalfOpen
			return true
		}
		return false
	case cbHalfOpen:
		return c.failCount == 0
	}
	return true
}

func (c *circuitBreaker) onSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failCount = 0
	c.state = cbClosed
}

func (c *circuitBreaker) onFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failCount++
	if c.state == cbHalfOpen || (c.state == cbClosed && c.failCount >= c.threshold) {
		c.state = cbOpen
		c.openedAt = time.Now()
	}
}

// withRetry runs fn up to attempts times with exponential backoff, honoring
// ctx cancellation between attempts.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := fn(attempt); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < attempts-1 {
			delay := base * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}
