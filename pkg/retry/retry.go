// Package retry repeats calls to the face service, the transcription service,
// event handlers and the startup database connect with capped exponential
// backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// marked tags an error as worth retrying or not. The tag never leaves Do.
type marked struct {
	err   error
	retry bool
}

func (m *marked) Error() string { return m.err.Error() }
func (m *marked) Unwrap() error { return m.err }

// Retryable marks err as transient, for example a refused connection or a 5xx.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err, retry: true}
}

// Permanent marks err as final. Do returns it at once whatever the policy.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{err: err}
}

// classify reads the mark on err and removes it when it is outermost.
func classify(err error) (out error, retry, tagged bool) {
	var m *marked
	if !errors.As(err, &m) {
		return err, false, false
	}
	if m == err {
		return m.err, m.retry, true
	}
	return err, m.retry, true
}

// Policy describes how a call is repeated. The zero value runs once.
type Policy struct {
	// Attempts is the total number of calls, the first included.
	Attempts int
	// Base is the wait after the first failure. It doubles on each retry up
	// to Cap.
	Base time.Duration
	Cap  time.Duration
	// Jitter spreads each wait by up to this fraction either way.
	Jitter float64
	// RetryAll retries unmarked errors too. Permanent still stops.
	RetryAll bool
	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Do calls fn until it succeeds, returns a final error or runs out of
// attempts. A Retryable or Permanent mark returned directly by fn is removed
// from the result. When ctx ends during a wait the last call's error is
// returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var last error
	for n := 1; n <= attempts; n++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err, retry, tagged := classify(fn(ctx))
		if err == nil {
			return nil
		}
		last = err
		if stop := !retry && (tagged || !p.RetryAll); stop || n == attempts {
			return err
		}

		wait := p.backoff(n)
		if p.OnRetry != nil {
			p.OnRetry(n, err, wait)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return last
		case <-t.C:
		}
	}
	return last
}

func (p Policy) backoff(n int) time.Duration {
	wait := p.Base << (n - 1)
	if p.Cap > 0 && (wait > p.Cap || wait <= 0) {
		wait = p.Cap
	}
	if p.Jitter > 0 {
		wait += time.Duration(float64(wait) * p.Jitter * (rand.Float64()*2 - 1))
	}
	return max(wait, 0)
}

// FaceService retries a detection call three times within about two seconds
// so a recognition request stays interactive.
func FaceService() Policy {
	return Policy{Attempts: 3, Base: 100 * time.Millisecond, Cap: time.Second, Jitter: 0.2}
}

// Transcription retries lecture audio uploads four times, up to eight seconds
// apart.
func Transcription() Policy {
	return Policy{Attempts: 4, Base: 500 * time.Millisecond, Cap: 8 * time.Second, Jitter: 0.1}
}

// Database retries the startup connect on any error while postgres comes up.
func Database() Policy {
	return Policy{Attempts: 5, Base: 500 * time.Millisecond, Cap: 5 * time.Second, Jitter: 0.05, RetryAll: true}
}
