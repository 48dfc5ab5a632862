package quality

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/insightmesh/core"
)

type mockStore struct{ mock.Mock }

func (m *mockStore) Append(ctx context.Context, qv core.QualityVector, cfg core.RunConfiguration, domain string) error {
	args := m.Called(ctx, qv, cfg, domain)
	return args.Error(0)
}

func (m *mockStore) QueryBestConfigurations(ctx context.Context, domain string, limit int) ([]core.Recommendation, error) {
	args := m.Called(ctx, domain, limit)
	return args.Get(0).([]core.Recommendation), args.Error(1)
}

func TestRecorder_Appends(t *testing.T) {
	store := &mockStore{}
	store.On("Append", mock.Anything, core.QualityVector{Overall: 7}, mock.Anything, "startup").Return(nil).Once()

	r := NewRecorder(store)
	r.Record(context.Background(), core.QualityVector{Overall: 7}, core.RunConfiguration{Depth: 2}, "startup")
	r.Wait()

	store.AssertExpectations(t)
}

func TestRecorder_FailureIsSwallowed(t *testing.T) {
	store := &mockStore{}
	store.On("Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	r := NewRecorder(store)
	assert.NotPanics(t, func() {
		r.Record(context.Background(), core.QualityVector{}, core.RunConfiguration{}, "x")
		r.Wait()
	})
}

type panickingStore struct{ core.LearningStore }

func (panickingStore) Append(context.Context, core.QualityVector, core.RunConfiguration, string) error {
	panic("broken store")
}

func TestRecorder_PanicIsContained(t *testing.T) {
	r := NewRecorder(panickingStore{})
	r.Record(context.Background(), core.QualityVector{}, core.RunConfiguration{}, "x")
	r.Wait()
}

func TestRecorder_DetachedFromCancellation(t *testing.T) {
	var (
		mu  sync.Mutex
		got error
	)
	store := &mockStore{}
	store.On("Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			defer mu.Unlock()
			got = args.Get(0).(context.Context).Err()
		}).
		Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRecorder(store)
	r.Record(ctx, core.QualityVector{}, core.RunConfiguration{}, "x")
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.NoError(t, got)
}

func TestRecorder_NilStore(t *testing.T) {
	r := NewRecorder(nil)
	r.Record(context.Background(), core.QualityVector{}, core.RunConfiguration{}, "x")
	r.Wait()
}
