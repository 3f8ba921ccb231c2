package business

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drilonhametaj25/client-sniper/internal/normalize"
)

// Retriever gathers candidate entities for an observation from independent
// store lookups.
type Retriever struct {
	store   Store
	limit   int
	timeout time.Duration
}

// NewRetriever creates a retriever that caps each lookup at limit rows and
// bounds it by timeout.
func NewRetriever(store Store, limit int, timeout time.Duration) *Retriever {
	return &Retriever{store: store, limit: limit, timeout: timeout}
}

type lookup struct {
	signal string
	run    func(ctx context.Context) ([]Entity, error)
}

// Retrieve runs one lookup per signal present on o and returns the union of
// their results by entity id, in signal order. A failed or timed out lookup
// contributes nothing.
func (r *Retriever) Retrieve(ctx context.Context, o Observation) []Entity {
	lookups := r.lookups(o)
	results := make([][]Entity, len(lookups))

	var g errgroup.Group
	for i, l := range lookups {
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			found, err := l.run(lctx)
			if err != nil {
				zap.L().Warn("resolve: candidate lookup failed",
					zap.String("signal", l.signal),
					zap.String("business_name", o.BusinessName),
					zap.Error(err),
				)
				return nil
			}
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var candidates []Entity
	for i, found := range results {
		for _, e := range found {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			candidates = append(candidates, e)
		}
		if len(found) > 0 {
			zap.L().Debug("resolve: candidates found",
				zap.String("signal", lookups[i].signal),
				zap.Int("count", len(found)),
			)
		}
	}
	return candidates
}

func (r *Retriever) lookups(o Observation) []lookup {
	name := normalize.Name(o.BusinessName)
	city := normalize.City(o.City)
	domain := normalize.ExtractDomain(o.WebsiteURL)
	phone := normalize.NormalizePhone(o.Phone)
	address := normalize.NormalizeAddress(o.Address)

	var ls []lookup
	if name != "" && city != "" {
		ls = append(ls, lookup{"name_city", func(ctx context.Context) ([]Entity, error) {
			return r.store.FindByNameCity(ctx, name, city, r.limit)
		}})
	}
	if domain != "" {
		ls = append(ls, lookup{"domain", func(ctx context.Context) ([]Entity, error) {
			return r.store.FindByDomain(ctx, domain, r.limit)
		}})
	}
	if phone != "" {
		ls = append(ls, lookup{"phone", func(ctx context.Context) ([]Entity, error) {
			return r.store.FindByPhone(ctx, phone, r.limit)
		}})
	}
	if address != "" {
		ls = append(ls, lookup{"address", func(ctx context.Context) ([]Entity, error) {
			return r.store.FindByAddress(ctx, address, r.limit)
		}})
	}
	return ls
}
