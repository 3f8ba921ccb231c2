package ingest

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drilonhametaj25/client-sniper/internal/business"
	"github.com/drilonhametaj25/client-sniper/internal/resilience"
)

// Resolver resolves a single observation into an entity.
type Resolver interface {
	Resolve(ctx context.Context, o business.Observation) (*business.Resolution, error)
}

// Options configures a Runner.
type Options struct {
	// Concurrency is the number of observations resolved at once. Default: 4.
	Concurrency int
	Retry       resilience.RetryConfig
	Circuit     resilience.CircuitBreakerConfig

	// DLQ receives observations that still fail after retries. Optional.
	DLQ *DLQ
}

// Summary counts the outcome of a run.
type Summary struct {
	Total     int `json:"total" yaml:"total"`
	Created   int `json:"created" yaml:"created"`
	Merged    int `json:"merged" yaml:"merged"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Runner resolves batches of observations concurrently.
type Runner struct {
	resolver Resolver
	breaker  *resilience.CircuitBreaker
	opts     Options
}

// NewRunner creates a Runner around resolver.
func NewRunner(resolver Resolver, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Circuit.OnStateChange == nil {
		opts.Circuit.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("ingest: store circuit changed state",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &Runner{
		resolver: resolver,
		breaker:  resilience.NewCircuitBreaker(opts.Circuit),
		opts:     opts,
	}
}

// Run resolves every observation. Individual failures are counted and sent
// to the DLQ; they do not abort the run. The returned error is non-nil only
// when ctx ends before the batch completes.
func (r *Runner) Run(ctx context.Context, observations []business.Observation) (Summary, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	var created, merged, unchanged, failed atomic.Int64

	zap.L().Info("ingest: starting run",
		zap.Int("observations", len(observations)),
		zap.Int("concurrency", r.opts.Concurrency),
	)

	for i, o := range observations {
		g.Go(func() error {
			res, attempts, err := r.resolveOne(gctx, o)
			if err != nil {
				failed.Add(1)
				zap.L().Error("ingest: observation failed",
					zap.Int("index", i),
					zap.String("business_name", o.BusinessName),
					zap.String("city", o.City),
					zap.Int("attempts", attempts),
					zap.Error(err),
				)
				if r.opts.DLQ != nil {
					if dErr := r.opts.DLQ.Add(o, err, attempts); dErr != nil {
						zap.L().Warn("ingest: dlq write failed", zap.Error(dErr))
					}
				}
				return nil // don't abort batch on individual failure
			}

			switch {
			case res.Created:
				created.Add(1)
			case res.Changed:
				merged.Add(1)
			default:
				unchanged.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{
		Total:     len(observations),
		Created:   int(created.Load()),
		Merged:    int(merged.Load()),
		Unchanged: int(unchanged.Load()),
		Failed:    int(failed.Load()),
	}
	zap.L().Info("ingest: run complete",
		zap.Int("total", sum.Total),
		zap.Int("created", sum.Created),
		zap.Int("merged", sum.Merged),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("failed", sum.Failed),
	)

	if err := ctx.Err(); err != nil {
		return sum, eris.Wrap(err, "ingest: run interrupted")
	}
	return sum, nil
}

// resolveOne resolves o with retries behind the store circuit breaker.
func (r *Runner) resolveOne(ctx context.Context, o business.Observation) (*business.Resolution, int, error) {
	var attempts int
	retry := r.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("ingest: resolve",
			zap.String("business_name", o.BusinessName),
			zap.String("city", o.City),
		)
	}

	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*business.Resolution, error) {
		attempts++
		return resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*business.Resolution, error) {
			return r.resolver.Resolve(ctx, o)
		})
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = resilience.NewTransientError(err, 0)
	}
	return res, attempts, err
}
