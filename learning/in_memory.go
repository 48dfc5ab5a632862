package learning

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
)

// InMemoryStore is a naive process-local LearningStore. Records are kept
// per domain in append order.
//
// Concurrency: protected by RWMutex. Queries copy under the read lock and
// aggregate outside it.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]core.LearningRecord // domain -> records
	now     func() time.Time
}

// NewInMemoryStore creates a new in-memory learning store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string][]core.LearningRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append implements core.LearningStore.
func (m *InMemoryStore) Append(ctx context.Context, qv core.QualityVector, cfg core.RunConfiguration, domain string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if domain == "" {
		domain = core.DefaultDomain
	}
	rec := core.LearningRecord{
		ID:         core.NewID(),
		Domain:     domain,
		Quality:    qv,
		Config:     cfg.Frozen(),
		RecordedAt: m.now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[domain] = append(m.records[domain], rec)
	return nil
}

// Records returns a copy of every record of a domain in append order.
func (m *InMemoryStore) Records(domain string) []core.LearningRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.records[domain]
	out := make([]core.LearningRecord, len(src))
	for i, r := range src {
		r.Config = r.Config.Frozen()
		out[i] = r
	}
	return out
}

// QueryBestConfigurations implements core.LearningStore.
func (m *InMemoryStore) QueryBestConfigurations(ctx context.Context, domain string, limit int) ([]core.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Rank(m.Records(domain), limit), nil
}
