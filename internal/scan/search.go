package scan

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/query"
)

// MethodResult is the query result for one method that matched
type MethodResult struct {
	Method string
	Result *query.Result
}

// Query walks every built forest with chain. Methods are searched in
// parallel and returned in method key order. Methods that exceed the work
// budget keep their partial results and contribute to the returned
// MultiError; an invalid chain fails before any method is searched.
func (s *Scanner) Query(ctx context.Context, eng query.Engine, chain ...*query.Query) ([]MethodResult, error) {
	for _, q := range chain {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}

	forests := s.Forests()
	results := make([]*query.Result, len(forests))
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, f := range forests {
		g.Go(func() error {
			res, err := eng.Walk(gctx, f, chain...)
			results[i] = res
			if err == nil {
				return nil
			}
			if errors.Is(err, bcqerrors.ErrBudgetExceeded) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []MethodResult
	for i, res := range results {
		if res != nil && res.Matched() {
			out = append(out, MethodResult{Method: forests[i].Method(), Result: res})
		}
	}
	return out, bcqerrors.NewMultiError(errs).ErrorOrNil()
}
