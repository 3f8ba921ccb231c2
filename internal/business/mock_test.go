package business

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu       sync.Mutex
	entities []Entity

	findErr   map[string]error
	findDelay map[string]time.Duration
	createErr   error
	updateErr   error
	getByKeyErr error
	// beforeUpdate runs inside UpdateEntity before the version check.
	beforeUpdate func()

	creates int
	updates int
}

func newMemStore() *memStore {
	return &memStore{findErr: map[string]error{}, findDelay: map[string]time.Duration{}}
}

// find mirrors the SQL lookups: containment matches in creation order, exact
// matches first, capped at limit.
func (m *memStore) find(ctx context.Context, signal string, match, exact func(sc searchColumns) bool, limit int) ([]Entity, error) {
	if d := m.findDelay[signal]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.findErr[signal]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var exacts, rest []Entity
	for _, e := range m.entities {
		sc := searchColumnsOf(&e)
		switch {
		case !match(sc):
		case exact(sc):
			exacts = append(exacts, cloneEntity(e))
		default:
			rest = append(rest, cloneEntity(e))
		}
	}
	out := append(exacts, rest...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func contains2(a, b string) bool {
	return a != "" && (strings.Contains(a, b) || strings.Contains(b, a))
}

func (m *memStore) FindByNameCity(ctx context.Context, name, city string, limit int) ([]Entity, error) {
	return m.find(ctx, "name_city", func(sc searchColumns) bool {
		return sc.city == city && contains2(sc.name, name)
	}, func(sc searchColumns) bool { return sc.name == name }, limit)
}

func (m *memStore) FindByDomain(ctx context.Context, domain string, limit int) ([]Entity, error) {
	return m.find(ctx, "domain", func(sc searchColumns) bool { return contains2(sc.domain, domain) },
		func(sc searchColumns) bool { return sc.domain == domain }, limit)
}

func (m *memStore) FindByPhone(ctx context.Context, phone string, limit int) ([]Entity, error) {
	return m.find(ctx, "phone", func(sc searchColumns) bool { return contains2(sc.phone, phone) },
		func(sc searchColumns) bool { return sc.phone == phone }, limit)
}

func (m *memStore) FindByAddress(ctx context.Context, address string, limit int) ([]Entity, error) {
	return m.find(ctx, "address", func(sc searchColumns) bool { return contains2(sc.address, address) },
		func(sc searchColumns) bool { return sc.address == address }, limit)
}

func (m *memStore) GetEntity(_ context.Context, id string) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entities {
		if e.ID == id {
			c := cloneEntity(e)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetByUniqueKey(_ context.Context, key string) (*Entity, error) {
	if m.getByKeyErr != nil {
		return nil, m.getByKeyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entities {
		if e.UniqueKey == key {
			c := cloneEntity(e)
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateEntity(_ context.Context, e *Entity) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.entities {
		if x.UniqueKey == e.UniqueKey {
			return ErrDuplicateKey
		}
	}
	e.Version = 1
	m.entities = append(m.entities, cloneEntity(*e))
	m.creates++
	return nil
}

func (m *memStore) UpdateEntity(_ context.Context, e *Entity, expectedVersion int64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.entities {
		if x.ID != e.ID {
			continue
		}
		if x.Version != expectedVersion {
			return ErrStaleEntity
		}
		e.Version = expectedVersion + 1
		m.entities[i] = cloneEntity(*e)
		m.updates++
		return nil
	}
	return ErrStaleEntity
}

// bump simulates a concurrent writer advancing an entity's version.
func (m *memStore) bump(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entities {
		if m.entities[i].ID == id {
			m.entities[i].Version++
		}
	}
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities)
}

func (m *memStore) Ping(context.Context) error    { return nil }
func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func cloneEntity(e Entity) Entity {
	c := e
	c.Sources = append([]string(nil), e.Sources...)
	c.NeededRoles = append([]string(nil), e.NeededRoles...)
	c.Issues = append([]string(nil), e.Issues...)
	c.Analysis = cloneAnalysis(e.Analysis)
	return c
}

func intPtr(i int) *int { return &i }

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
