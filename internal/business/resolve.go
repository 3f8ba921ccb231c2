package business

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drilonhametaj25/client-sniper/internal/resilience"
)

// Options tunes a Resolver. Zero fields take the defaults of DefaultOptions.
type Options struct {
	// Threshold is the exclusive composite score a candidate must exceed.
	Threshold float64
	// MaxCandidates caps the rows each lookup returns.
	MaxCandidates int
	// LookupTimeout bounds each candidate lookup.
	LookupTimeout time.Duration
	// WriteTimeout bounds the final create or update.
	WriteTimeout time.Duration
	// MaxAttempts bounds how often a resolution is recomputed after losing
	// an update race.
	MaxAttempts int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default resolver tuning.
func DefaultOptions() Options {
	return Options{
		Threshold:     DefaultThreshold,
		MaxCandidates: 20,
		LookupTimeout: 2 * time.Second,
		WriteTimeout:  5 * time.Second,
		MaxAttempts:   5,
		Now:           time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = d.Threshold
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = d.LookupTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Resolver reconciles observations against the entity store. It is the only
// component that writes entities.
type Resolver struct {
	store     Store
	retriever *Retriever
	opts      Options
}

// NewResolver creates a resolver over store.
func NewResolver(store Store, opts Options) *Resolver {
	opts = opts.withDefaults()
	return &Resolver{
		store:     store,
		retriever: NewRetriever(store, opts.MaxCandidates, opts.LookupTimeout),
		opts:      opts,
	}
}

// Resolve matches o against the known entities and either merges it into
// the best match or creates a new entity. Nothing is written when an error
// is returned; the call can be retried as a whole.
func (r *Resolver) Resolve(ctx context.Context, o Observation) (*Resolution, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		res, err := r.resolveOnce(ctx, o)
		if err == nil {
			res.Attempts = attempt
			return res, nil
		}
		if !errors.Is(err, ErrStaleEntity) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "business: resolve")
		}
		zap.L().Debug("resolve: lost update race, recomputing",
			zap.String("business_name", o.BusinessName),
			zap.Int("attempt", attempt),
		)
	}

	return nil, resilience.NewTransientError(
		eris.Wrapf(ErrContention, "business: resolve %q after %d attempts", o.BusinessName, r.opts.MaxAttempts),
		0,
	)
}

func (r *Resolver) resolveOnce(ctx context.Context, o Observation) (*Resolution, error) {
	candidates := r.retriever.Retrieve(ctx, o)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "business: resolve")
	}

	decision := Decide(Rank(o, candidates), r.opts.Threshold)
	now := r.opts.Now().UTC()

	if decision.Match {
		zap.L().Debug("resolve: matched",
			zap.String("entity_id", decision.Best.Entity.ID),
			zap.Float64("score", decision.Best.Score),
			zap.Any("signals", decision.Best.Signals),
		)
		return r.mergeInto(ctx, decision.Best.Entity, o, now, decision.Best.Score)
	}

	e := NewEntity(o, now)
	err := r.bounded(ctx, "business: create entity", func(wctx context.Context) error {
		return r.store.CreateEntity(wctx, &e)
	})
	if err == nil {
		zap.L().Info("resolve: created entity",
			zap.String("entity_id", e.ID),
			zap.String("unique_key", e.UniqueKey),
			zap.String("source_id", o.SourceID),
		)
		return &Resolution{EntityID: e.ID, Created: true, Changed: true}, nil
	}
	if !errors.Is(err, ErrDuplicateKey) {
		return nil, err
	}

	// Another writer created the same identity first; merge into it.
	var existing *Entity
	err = r.bounded(ctx, "business: load conflicting entity", func(wctx context.Context) error {
		var gerr error
		existing, gerr = r.store.GetByUniqueKey(wctx, e.UniqueKey)
		return gerr
	})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, eris.Wrapf(ErrStaleEntity, "business: entity %q vanished after conflict", e.UniqueKey)
	}
	zap.L().Debug("resolve: unique key conflict, merging",
		zap.String("unique_key", e.UniqueKey),
		zap.String("entity_id", existing.ID),
	)
	return r.mergeInto(ctx, *existing, o, now, Score(o, *existing).Score)
}

func (r *Resolver) mergeInto(ctx context.Context, existing Entity, o Observation, now time.Time, score float64) (*Resolution, error) {
	next := Merge(existing, o, now)
	err := r.bounded(ctx, "business: update entity", func(wctx context.Context) error {
		return r.store.UpdateEntity(wctx, &next, existing.Version)
	})
	if err != nil {
		return nil, err
	}

	changed := next.ContentHash != existing.ContentHash
	zap.L().Info("resolve: merged observation",
		zap.String("entity_id", next.ID),
		zap.String("source_id", o.SourceID),
		zap.Bool("changed", changed),
		zap.Int64("version", next.Version),
	)
	return &Resolution{EntityID: next.ID, Changed: changed, Score: score}, nil
}

// bounded runs a store call of the write path under the write timeout.
// Timeouts and transient store failures are returned as transient errors.
func (r *Resolver) bounded(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	wctx, cancel := context.WithTimeout(ctx, r.opts.WriteTimeout)
	defer cancel()

	err := fn(wctx)
	if err == nil || errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrStaleEntity) {
		return err
	}
	if resilience.IsTransient(err) || errors.Is(wctx.Err(), context.DeadlineExceeded) {
		return resilience.NewTransientError(eris.Wrap(err, op), 0)
	}
	return eris.Wrap(err, op)
}

// Get returns a stored entity by ID, or nil when it does not exist.
func (r *Resolver) Get(ctx context.Context, id string) (*Entity, error) {
	e, err := r.store.GetEntity(ctx, id)
	return e, eris.Wrapf(err, "business: get %s", id)
}
