// Package middleware provides reusable model.Model middlewares such as
// request rate limiting.
package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agentloop/model"
)

// Compile-time check that RateLimited satisfies model.Model.
var _ model.Model = (*RateLimited)(nil)

// RateLimited wraps a Model and admits Generate calls through a shared token
// bucket. The limiter is waited on before the delegate is invoked, so
// concurrent agents sharing one wrapped model are throttled collectively.
type RateLimited struct {
	next    model.Model
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of the given refill rate and
// burst. One token is consumed per Generate call.
func NewRateLimited(next model.Model, limit rate.Limit, burst int) *RateLimited {
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// PerMinute converts a calls-per-minute budget into a rate.Limit.
func PerMinute(calls float64) rate.Limit {
	return rate.Limit(calls / 60.0)
}

// Generate blocks until the limiter admits the call, then forwards the
// delegate's response stream unchanged.
func (r *RateLimited) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := r.limiter.Wait(ctx); err != nil {
			errCh <- err
			return
		}

		inner, innerErr := r.next.Generate(ctx, req)
		for resp := range inner {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- resp:
			}
		}
		if err := <-innerErr; err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// Info reports the delegate's metadata.
func (r *RateLimited) Info() model.Info { return r.next.Info() }
