package extraction

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// callWithRetry runs call with exponential backoff. Errors that retryable
// rejects stop the loop immediately.
func callWithRetry(ctx context.Context, retries int, initial time.Duration, retryable func(error) bool, call func(context.Context) (string, error)) (string, int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.MaxElapsedTime = 0

	attempts := 0
	var text string
	op := func() error {
		attempts++
		var err error
		text, err = call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
	return text, attempts, err
}

// isTransient covers the failures every provider shares
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
