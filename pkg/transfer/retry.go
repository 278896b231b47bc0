package transfer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sciobjsdb/sodb/pkg/sodb"
)

const (
	DefaultRetries    = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// RetryPolicy repeats retryable failures. Attempts is the number of extra
// attempts after the first one; the n-th retry waits n*Delay.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy is used by zero valued configs.
var DefaultRetryPolicy = RetryPolicy{Attempts: DefaultRetries, Delay: DefaultRetryDelay}

// NoRetry runs every operation exactly once.
var NoRetry = RetryPolicy{}

// linearBackOff waits n*delay before the n-th retry.
type linearBackOff struct {
	delay time.Duration
	n     int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.delay * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 0 {
		attempts = 0
	}
	b := backoff.WithMaxRetries(&linearBackOff{delay: p.Delay}, uint64(attempts))
	return backoff.WithContext(b, ctx)
}

// Do runs fn until it succeeds, fails with a non retryable error, the
// attempts are exhausted or ctx is done. A failure returns the last error of
// fn.
func (p RetryPolicy) Do(ctx context.Context, log sodb.Logger, op string, fn func() error) error {
	var last error
	operation := func() error {
		last = fn()
		if last != nil && !Retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}

	attempt := 0
	notify := func(err error, wait time.Duration) {
		attempt++
		if log != nil {
			log.WithField("attempt", attempt).WithError(err).Debugf("Retrying %s in %s", op, wait)
		}
	}

	if err := backoff.RetryNotify(operation, p.backOff(ctx), notify); err != nil {
		if last != nil {
			return last
		}
		return err
	}
	return nil
}
