package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStatsRepo records every saved snapshot.
type fakeStatsRepo struct {
	mu      sync.Mutex
	initial StatsSnapshot
	saved   []StatsSnapshot
	saveErr error
}

func (r *fakeStatsRepo) Load(ctx context.Context) (StatsSnapshot, error) {
	return r.initial, nil
}

func (r *fakeStatsRepo) Save(ctx context.Context, snap StatsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saved = append(r.saved, snap)
	return nil
}

func (r *fakeStatsRepo) lastSaved() (StatsSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saved) == 0 {
		return StatsSnapshot{}, false
	}
	return r.saved[len(r.saved)-1], true
}

// fakeNotifier collects notified snapshots.
type fakeNotifier struct {
	mu    sync.Mutex
	snaps []StatsSnapshot
}

func (n *fakeNotifier) NotifyStats(snap StatsSnapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snaps = append(n.snaps, snap)
}

func TestStatsAggregator_LoadsPersistedSnapshot(t *testing.T) {
	repo := &fakeStatsRepo{initial: StatsSnapshot{EmailsAnalyzed: 7, SendersGrouped: 3}}
	agg, err := NewStatsAggregator(repo, nil, zap.NewNop(), 16)
	require.NoError(t, err)
	defer agg.Stop()

	assert.Equal(t, StatsSnapshot{EmailsAnalyzed: 7, SendersGrouped: 3}, agg.Snapshot())
}

func TestStatsAggregator_NoLostIncrementsUnderConcurrency(t *testing.T) {
	repo := &fakeStatsRepo{}
	agg, err := NewStatsAggregator(repo, nil, zap.NewNop(), 16)
	require.NoError(t, err)

	const total = 500
	const newSenders = 123

	var wg sync.WaitGroup
	wg.Add(total)
	for i := 0; i < total; i++ {
		go func(isNew bool) {
			defer wg.Done()
			agg.Enqueue(isNew)
		}(i < newSenders)
	}
	wg.Wait()
	agg.Stop()

	snap := agg.Snapshot()
	assert.Equal(t, int64(total), snap.EmailsAnalyzed)
	assert.Equal(t, int64(newSenders), snap.SendersGrouped)

	last, ok := repo.lastSaved()
	require.True(t, ok)
	assert.Equal(t, snap, last)
}

func TestStatsAggregator_NotifierSeesEveryUpdateInOrder(t *testing.T) {
	repo := &fakeStatsRepo{}
	notifier := &fakeNotifier{}
	agg, err := NewStatsAggregator(repo, notifier, zap.NewNop(), 16)
	require.NoError(t, err)

	agg.Enqueue(true)
	agg.Enqueue(false)
	agg.Enqueue(true)
	agg.Stop()

	require.Len(t, notifier.snaps, 3)
	assert.Equal(t, StatsSnapshot{EmailsAnalyzed: 1, SendersGrouped: 1}, notifier.snaps[0])
	assert.Equal(t, StatsSnapshot{EmailsAnalyzed: 2, SendersGrouped: 1}, notifier.snaps[1])
	assert.Equal(t, StatsSnapshot{EmailsAnalyzed: 3, SendersGrouped: 2}, notifier.snaps[2])
}

func TestStatsAggregator_PersistFailureKeepsCounting(t *testing.T) {
	repo := &fakeStatsRepo{saveErr: errors.New("disk full")}
	agg, err := NewStatsAggregator(repo, nil, zap.NewNop(), 16)
	require.NoError(t, err)

	agg.Enqueue(true)
	agg.Enqueue(false)
	agg.Stop()

	// In-memory counters stay exact even when persistence fails.
	assert.Equal(t, StatsSnapshot{EmailsAnalyzed: 2, SendersGrouped: 1}, agg.Snapshot())
}

func TestStatsAggregator_StopIsIdempotent(t *testing.T) {
	agg, err := NewStatsAggregator(&fakeStatsRepo{}, nil, zap.NewNop(), 16)
	require.NoError(t, err)

	agg.Enqueue(false)
	agg.Stop()
	agg.Stop()

	assert.Equal(t, int64(1), agg.Snapshot().EmailsAnalyzed)
}
