package dynamo

import (
	"context"
	"errors"
	"sync"
)

// ForEach runs fn for every index in [0, n) on its own goroutine and waits
// for all of them. Errors from every index are joined in index order.
func ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 1 {
		return fn(ctx, 0)
	}

	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = fn(ctx, idx)
		}(i)
	}

	wg.Wait()

	return errors.Join(errs...)
}
