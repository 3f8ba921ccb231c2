package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drilonhametaj25/client-sniper/internal/business"
	"github.com/drilonhametaj25/client-sniper/internal/resilience"
)

// fakeResolver returns scripted outcomes keyed by business name.
type fakeResolver struct {
	mu       sync.Mutex
	calls    map[string]int
	outcomes map[string][]error
	results  map[string]business.Resolution
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		calls:    map[string]int{},
		outcomes: map[string][]error{},
		results:  map[string]business.Resolution{},
	}
}

func (f *fakeResolver) Resolve(_ context.Context, o business.Observation) (*business.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[o.BusinessName]
	f.calls[o.BusinessName] = n + 1
	if errs := f.outcomes[o.BusinessName]; n < len(errs) && errs[n] != nil {
		return nil, errs[n]
	}
	res := f.results[o.BusinessName]
	return &res, nil
}

func (f *fakeResolver) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func obs(name string) business.Observation {
	return business.Observation{BusinessName: name, City: "Roma", SourceID: "maps"}
}

func TestRunner_CountsOutcomes(t *testing.T) {
	fr := newFakeResolver()
	fr.results["new"] = business.Resolution{EntityID: "e1", Created: true, Changed: true}
	fr.results["merged"] = business.Resolution{EntityID: "e2", Changed: true}
	fr.results["same"] = business.Resolution{EntityID: "e3"}
	fr.outcomes["bad"] = []error{business.ErrInvalidObservation}

	r := NewRunner(fr, Options{Concurrency: 2, Retry: fastRetry()})
	sum, err := r.Run(context.Background(), []business.Observation{obs("new"), obs("merged"), obs("same"), obs("bad")})
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 4, Created: 1, Merged: 1, Unchanged: 1, Failed: 1}, sum)
	assert.Equal(t, 1, fr.callCount("bad"), "permanent errors are not retried")
}

func TestRunner_RetriesTransient(t *testing.T) {
	fr := newFakeResolver()
	fr.outcomes["flaky"] = []error{
		resilience.NewTransientError(business.ErrContention, 0),
		context.DeadlineExceeded,
	}
	fr.results["flaky"] = business.Resolution{EntityID: "e1", Created: true}

	r := NewRunner(fr, Options{Retry: fastRetry()})
	sum, err := r.Run(context.Background(), []business.Observation{obs("flaky")})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Created)
	assert.Equal(t, 0, sum.Failed)
	assert.Equal(t, 3, fr.callCount("flaky"))
}

func TestRunner_FailuresGoToDLQ(t *testing.T) {
	fr := newFakeResolver()
	down := errors.New("connection reset by peer")
	fr.outcomes["down"] = []error{down, down, down}
	fr.outcomes["bad"] = []error{business.ErrInvalidObservation}

	path := filepath.Join(t.TempDir(), "dlq.jsonl")
	dlq := NewDLQ(path)
	r := NewRunner(fr, Options{Retry: fastRetry(), DLQ: dlq})

	sum, err := r.Run(context.Background(), []business.Observation{obs("down"), obs("bad"), obs("ok")})
	require.NoError(t, err)
	require.NoError(t, dlq.Close())
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 1, sum.Unchanged)

	entries, err := ReadDLQ(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byName := map[string]DLQEntry{}
	for _, e := range entries {
		byName[e.Observation.BusinessName] = e
	}
	assert.Equal(t, "transient", byName["down"].ErrorType)
	assert.Equal(t, 3, byName["down"].Attempts)
	assert.Equal(t, "permanent", byName["bad"].ErrorType)
	assert.Equal(t, 1, byName["bad"].Attempts)
}

func TestRunner_CircuitOpensOnStoreOutage(t *testing.T) {
	fr := newFakeResolver()
	down := errors.New("database is locked")
	var batch []business.Observation
	for i := range 6 {
		name := fmt.Sprintf("biz-%d", i)
		fr.outcomes[name] = []error{down, down, down}
		batch = append(batch, obs(name))
	}

	var transitions []string
	r := NewRunner(fr, Options{
		Concurrency: 1,
		Retry:       resilience.RetryConfig{MaxAttempts: 1},
		Circuit: resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Hour,
			OnStateChange: func(_, to resilience.CircuitState) {
				transitions = append(transitions, to.String())
			},
		},
	})

	sum, err := r.Run(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Failed)
	assert.Equal(t, []string{"open"}, transitions)

	calls := 0
	for i := range 6 {
		calls += fr.callCount(fmt.Sprintf("biz-%d", i))
	}
	assert.Equal(t, 3, calls, "open circuit short-circuits remaining observations")
}

func TestRunner_CancelledContext(t *testing.T) {
	fr := newFakeResolver()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(fr, Options{Retry: fastRetry()})
	_, err := r.Run(ctx, []business.Observation{obs("a")})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_EmptyBatch(t *testing.T) {
	r := NewRunner(newFakeResolver(), Options{})
	sum, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, sum)
}
