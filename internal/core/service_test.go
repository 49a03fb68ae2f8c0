package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProfileRepo is an in-memory ProfileRepository with injectable
// failures, used to exercise the orchestrator's error paths.
type fakeProfileRepo struct {
	mu        sync.Mutex
	profiles  map[string]SenderProfile
	upsertErr error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[string]SenderProfile)}
}

func (r *fakeProfileRepo) GetOrDefault(ctx context.Context, email string) (*SenderProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[email]; ok {
		copied := p
		return &copied, nil
	}
	return NewDefaultProfile(email), nil
}

func (r *fakeProfileRepo) Upsert(ctx context.Context, profile *SenderProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.profiles[profile.Email] = *profile
	return nil
}

func (r *fakeProfileRepo) ListRecent(ctx context.Context, limit int) ([]*SenderProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*SenderProfile, 0, limit)
	for _, p := range r.profiles {
		if len(out) == limit {
			break
		}
		copied := p
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeProfileRepo) Exists(ctx context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.profiles[email]
	return ok, nil
}

func (r *fakeProfileRepo) stored(email string) (SenderProfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[email]
	return p, ok
}

// fakeRemote counts calls and returns a fixed result or error.
type fakeRemote struct {
	calls  int64
	result *RemoteResult
	err    error
}

func (f *fakeRemote) Classify(ctx context.Context, event *Event) (*RemoteResult, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestService(t *testing.T, remote RemoteClassifier, repo *fakeProfileRepo) (*TriageService, *StatsAggregator) {
	t.Helper()
	agg, err := NewStatsAggregator(&fakeStatsRepo{}, nil, zap.NewNop(), 64)
	require.NoError(t, err)
	svc := NewTriageService(NewRuleClassifier(nil), remote, repo, agg, zap.NewNop())
	return svc, agg
}

func TestHandleEvent_RemoteResultIsUsed(t *testing.T) {
	repo := newFakeProfileRepo()
	remote := &fakeRemote{result: &RemoteResult{
		Purpose:    CategoryPromotion,
		Topic:      "shopping",
		SenderType: "marketing",
		Confidence: 0.92,
	}}
	svc, agg := newTestService(t, remote, repo)
	defer agg.Stop()

	got, err := svc.HandleEvent(context.Background(), &Event{Sender: "shop@store.example"})
	require.NoError(t, err)
	assert.Equal(t, CategoryPromotion, got)

	p, ok := repo.stored("shop@store.example")
	require.True(t, ok)
	assert.Equal(t, int64(1), p.TotalReceived)
	assert.Equal(t, CategoryPromotion, p.Classification)
	assert.Equal(t, "Promotion", p.Purpose)
	assert.Equal(t, "shopping", p.Topic)
	assert.Equal(t, "marketing", p.SenderType)
	assert.Equal(t, 0.92, p.Confidence)
	assert.Equal(t, "store.example", p.Domain)
	assert.False(t, p.LastInteraction.IsZero())
}

func TestHandleEvent_RemoteFailureFallsBackToRules(t *testing.T) {
	repo := newFakeProfileRepo()
	remote := &fakeRemote{err: errors.New("connection refused")}
	svc, agg := newTestService(t, remote, repo)
	defer agg.Stop()

	event := &Event{Sender: "news@unknown-domain.net", Body: "unsubscribe"}
	got, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err, "remote failure must not surface to the caller")
	assert.Equal(t, CategorySubscription, got)

	// The remote fields stay unset after a fallback.
	p, _ := repo.stored("news@unknown-domain.net")
	assert.Equal(t, "Subscription", p.Purpose)
	assert.Empty(t, p.Topic)
	assert.Empty(t, p.SenderType)
	assert.Zero(t, p.Confidence)

	// The fallback is repeatable: a second event behaves identically.
	got, err = svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, CategorySubscription, got)
	assert.Equal(t, int64(2), atomic.LoadInt64(&remote.calls))
}

func TestHandleEvent_NilRemoteClassifiesLocally(t *testing.T) {
	repo := newFakeProfileRepo()
	svc, agg := newTestService(t, nil, repo)
	defer agg.Stop()

	got, err := svc.HandleEvent(context.Background(), &Event{Sender: "billing@stripe.com"})
	require.NoError(t, err)
	assert.Equal(t, CategoryTransactional, got)
}

func TestHandleEvent_OverrideShortCircuits(t *testing.T) {
	repo := newFakeProfileRepo()
	remote := &fakeRemote{result: &RemoteResult{Purpose: CategorySpam}}
	svc, agg := newTestService(t, remote, repo)
	defer agg.Stop()

	require.NoError(t, svc.SetOverride(context.Background(), "x@y.com", CategoryWork))

	got, err := svc.HandleEvent(context.Background(), &Event{Sender: "x@y.com"})
	require.NoError(t, err)
	assert.Equal(t, CategoryWork, got)
	assert.Zero(t, atomic.LoadInt64(&remote.calls), "remote must not be consulted when overridden")

	p, _ := repo.stored("x@y.com")
	assert.Equal(t, CategoryWork, p.Classification)
	assert.Equal(t, "Work", p.Purpose)
	assert.Equal(t, CategoryWork, p.UserOverride)
}

func TestHandleEvent_MissingSenderRejected(t *testing.T) {
	svc, agg := newTestService(t, nil, newFakeProfileRepo())
	defer agg.Stop()

	_, err := svc.HandleEvent(context.Background(), &Event{})
	assert.Error(t, err)
}

func TestHandleEvent_ConcurrentSameSender(t *testing.T) {
	repo := newFakeProfileRepo()
	svc, agg := newTestService(t, nil, repo)

	const n = 50
	event := &Event{Sender: "new@example.com", Body: "hello"}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.HandleEvent(context.Background(), event)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	agg.Stop()

	p, ok := repo.stored("new@example.com")
	require.True(t, ok)
	assert.Equal(t, int64(n), p.TotalReceived, "no increment may be lost")

	snap := agg.Snapshot()
	assert.Equal(t, int64(n), snap.EmailsAnalyzed)
	assert.Equal(t, int64(1), snap.SendersGrouped, "only the first event sees a new sender")
}

func TestHandleEvent_PersistenceFailureReleasesLock(t *testing.T) {
	repo := newFakeProfileRepo()
	repo.upsertErr = errors.New("store unavailable")
	svc, agg := newTestService(t, nil, repo)
	defer agg.Stop()

	event := &Event{Sender: "a@b.com"}
	_, err := svc.HandleEvent(context.Background(), event)
	require.Error(t, err, "persistence failures surface to the caller")

	// The lock must have been released: a retry makes progress instead
	// of deadlocking.
	repo.mu.Lock()
	repo.upsertErr = nil
	repo.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := svc.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, CategoryPersonal, got)
}

func TestPerformAction_Unsubscribe(t *testing.T) {
	repo := newFakeProfileRepo()
	svc, agg := newTestService(t, nil, repo)
	defer agg.Stop()

	require.NoError(t, svc.PerformAction(context.Background(), "list@news.example", ActionUnsubscribe))

	p, ok := repo.stored("list@news.example")
	require.True(t, ok)
	assert.Equal(t, ActionUnsubscribe, p.LastAction)
	assert.True(t, p.Unsubscribed)
}

func TestPerformAction_DeleteDoesNotUnsubscribe(t *testing.T) {
	repo := newFakeProfileRepo()
	svc, agg := newTestService(t, nil, repo)
	defer agg.Stop()

	require.NoError(t, svc.PerformAction(context.Background(), "list@news.example", ActionDelete))

	p, _ := repo.stored("list@news.example")
	assert.Equal(t, ActionDelete, p.LastAction)
	assert.False(t, p.Unsubscribed)
}

func TestPerformAction_RejectsUnknownAction(t *testing.T) {
	svc, agg := newTestService(t, nil, newFakeProfileRepo())
	defer agg.Stop()

	assert.Error(t, svc.PerformAction(context.Background(), "a@b.com", Action("ARCHIVE")))
}

func TestOverrideAccessors(t *testing.T) {
	svc, agg := newTestService(t, nil, newFakeProfileRepo())
	defer agg.Stop()
	ctx := context.Background()

	_, ok, err := svc.GetOverride(ctx, "a@b.com")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.SetOverride(ctx, "a@b.com", CategorySpam))

	got, ok, err := svc.GetOverride(ctx, "a@b.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, CategorySpam, got)
}
