package core

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// statsIncrement is one pending counter update.
type statsIncrement struct {
	isNewSender bool
}

// StatsAggregator serializes all stats updates through a single worker
// goroutine. Producers only enqueue; exactly one consumer performs the
// read-modify-write of the snapshot, so increments are never lost or
// double-applied no matter how many detection events are in flight.
type StatsAggregator struct {
	repo     StatsRepository
	notifier StatsNotifier
	logger   *zap.Logger

	incoming chan statsIncrement
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.RWMutex
	snap StatsSnapshot
}

// NewStatsAggregator loads the persisted snapshot and spawns the single
// consumer goroutine. The notifier may be nil.
func NewStatsAggregator(repo StatsRepository, notifier StatsNotifier, logger *zap.Logger, queueSize int) (*StatsAggregator, error) {
	if queueSize <= 0 {
		queueSize = 1024
	}

	snap, err := repo.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load stats snapshot: %w", err)
	}

	a := &StatsAggregator{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		incoming: make(chan statsIncrement, queueSize),
		done:     make(chan struct{}),
		snap:     snap,
	}
	go a.run()

	return a, nil
}

// Enqueue submits one increment. EmailsAnalyzed always advances;
// SendersGrouped advances only when isNewSender is true. Blocks when the
// queue is full rather than dropping the increment. Must not be called
// after Stop.
func (a *StatsAggregator) Enqueue(isNewSender bool) {
	a.incoming <- statsIncrement{isNewSender: isNewSender}
}

// Snapshot returns the current counters.
func (a *StatsAggregator) Snapshot() StatsSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Stop drains every pending increment and waits for the worker to exit.
func (a *StatsAggregator) Stop() {
	a.stopOnce.Do(func() {
		close(a.incoming)
		<-a.done
	})
}

func (a *StatsAggregator) run() {
	defer close(a.done)

	for inc := range a.incoming {
		a.apply(inc)
	}
}

func (a *StatsAggregator) apply(inc statsIncrement) {
	a.mu.Lock()
	a.snap.EmailsAnalyzed++
	if inc.isNewSender {
		a.snap.SendersGrouped++
	}
	snap := a.snap
	a.mu.Unlock()

	if err := a.repo.Save(context.Background(), snap); err != nil {
		a.logger.Error("Failed to persist stats snapshot",
			zap.Error(err),
			zap.Int64("emails_analyzed", snap.EmailsAnalyzed))
	}

	a.logger.Debug("Stats updated",
		zap.Int64("emails_analyzed", snap.EmailsAnalyzed),
		zap.Int64("senders_grouped", snap.SendersGrouped))

	if a.notifier != nil {
		a.notifier.NotifyStats(snap)
	}
}
