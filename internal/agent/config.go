package agent

import "time"

// Config holds the guardrail's tunables, all named directly after the
// configuration surface of §6.
type Config struct {
	KExclusion  int
	KInclusion  int
	KFinancial  int
	TauExclusion float64
	TauInclusion float64
	FanoutLimit int
	RetryBase   time.Duration
	RetryMaxTries int
}

// DefaultConfig matches the defaults named in §4.6/§6.
func DefaultConfig() Config {
	return Config{
		KExclusion: 8, KInclusion: 8, KFinancial: 4,
		TauExclusion: 0.6, TauInclusion: 0.6,
		FanoutLimit: 4, RetryBase: 200 * time.Millisecond, RetryMaxTries: 3,
	}
}
