package syncer

import (
	"time"

	"github.com/sethvargo/go-retry"

	"jellysync/internal/config"
)

// Policy bounds retries and parallelism.
type Policy struct {
	// MaxAttempts caps executions per file, first attempt included.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Concurrency    int
}

// PolicyFromConfig reads the [sync] section.
func PolicyFromConfig(cfg *config.Config) Policy {
	if cfg == nil {
		return Policy{}.normalized()
	}
	return Policy{
		MaxAttempts:    cfg.Sync.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
		Concurrency:    cfg.Sync.Concurrency,
	}.normalized()
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	return p
}

// backoff returns a fresh schedule; go-retry backoffs are stateful.
func (p Policy) backoff() retry.Backoff {
	b := retry.NewExponential(p.InitialBackoff)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithCappedDuration(p.MaxBackoff, b)
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}
