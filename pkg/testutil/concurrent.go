package testutil

import (
	"errors"
	"sync"

	"legitify/internal/sentinel"
	dErrors "legitify/pkg/domain-errors"
)

// ConcurrentResult tallies the outcomes of a RunConcurrent call.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32
	NotFounds int32
	// Errors counts failures that are neither conflicts nor not-found.
	Errors int32
	// Errs holds each call's error by index, nil on success.
	Errs []error
}

// RunConcurrent calls fn(0..n-1) on n goroutines that are released together,
// so the calls overlap as much as the scheduler allows.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	res := &ConcurrentResult{Errs: make([]error, n)}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res.Errs[i] = fn(i)
		}()
	}
	close(start)
	wg.Wait()

	for _, err := range res.Errs {
		switch {
		case err == nil:
			res.Successes++
		case errors.Is(err, sentinel.ErrConflict), dErrors.HasCode(err, dErrors.CodeConflict):
			res.Conflicts++
		case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
			res.NotFounds++
		default:
			res.Errors++
		}
	}
	return res
}
