package db

import (
	"context"
	"time"
)

const retryBackoff = 20 * time.Millisecond

// RunInTx runs fn in a transaction and reruns it from scratch, up to attempts times in total,
// while MySQL reports a deadlock or lock wait timeout. fn must not keep state between attempts.
func RunInTx(ctx context.Context, database Database, attempts int, fn func(tx Transaction) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = database.Transaction(ctx, fn)
		if err == nil || !IsRetryable(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
	return err
}
