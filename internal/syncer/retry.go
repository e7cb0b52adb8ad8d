package syncer

import "time"

// RetryPolicy bounds how often a failing change is retried before it is
// marked stuck, and how long to wait between attempts.
type RetryPolicy struct {
	MaxRetries int
	// Backoff returns the wait before attempt number retry+1, retry >= 1.
	Backoff func(retry int) time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: ExponentialBackoff(time.Second, 5*time.Minute)}
}

// Delay is the wait after the retry-th failure.
func (p RetryPolicy) Delay(retry int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(retry)
}

// ExponentialBackoff doubles base on every retry, capped at limit.
func ExponentialBackoff(base, limit time.Duration) func(int) time.Duration {
	return func(retry int) time.Duration {
		if retry < 1 {
			retry = 1
		}
		d := base
		for i := 1; i < retry; i++ {
			d *= 2
			if d >= limit {
				return limit
			}
		}
		return min(d, limit)
	}
}

// NoBackoff retries on the very next pass.
func NoBackoff(int) time.Duration { return 0 }
