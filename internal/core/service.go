package core

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/mail-triage/internal/metrics"
	"github.com/mikey/mail-triage/internal/syncutil"
	"go.uber.org/zap"
)

// TriageService is the core orchestrator. It composes the rule
// classifier, the remote classifier adapter, the profile store, the
// per-sender lock manager and the stats aggregator into the end-to-end
// handling of one detection event or one user action.
type TriageService struct {
	rules    *RuleClassifier
	remote   RemoteClassifier
	profiles ProfileRepository
	stats    *StatsAggregator
	locks    *syncutil.KeyMutex
	logger   *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewTriageService creates a new triage service. The remote classifier
// may be nil, in which case every event is classified locally.
func NewTriageService(
	rules *RuleClassifier,
	remote RemoteClassifier,
	profiles ProfileRepository,
	stats *StatsAggregator,
	logger *zap.Logger,
) *TriageService {
	return &TriageService{
		rules:    rules,
		remote:   remote,
		profiles: profiles,
		stats:    stats,
		locks:    syncutil.NewKeyMutex(),
		logger:   logger,
		now:      time.Now,
	}
}

// HandleEvent processes one detection event: the sender's profile is
// fetched and updated under the per-sender lock, a stats increment is
// enqueued, and the final classification is returned to the caller.
func (s *TriageService) HandleEvent(ctx context.Context, event *Event) (Category, error) {
	if event.Sender == "" {
		return "", fmt.Errorf("detection event has no sender")
	}

	unlock, err := s.locks.Lock(ctx, event.Sender)
	if err != nil {
		return "", fmt.Errorf("failed to acquire sender lock: %w", err)
	}
	defer unlock()

	profile, err := s.profiles.GetOrDefault(ctx, event.Sender)
	if err != nil {
		return "", fmt.Errorf("failed to fetch sender profile: %w", err)
	}

	classification := profile.UserOverride
	var remote *RemoteResult

	if classification != "" {
		s.logger.Debug("Using manual override",
			zap.String("sender", event.Sender),
			zap.String("classification", string(classification)))
	} else {
		classification, remote = s.classify(ctx, event)
	}

	isNewSender := profile.TotalReceived == 0

	profile.TotalReceived++
	profile.LastInteraction = s.now()
	profile.Classification = classification
	if remote != nil {
		profile.Purpose = string(remote.Purpose)
		profile.Topic = remote.Topic
		profile.SenderType = remote.SenderType
		profile.Confidence = remote.Confidence
	} else {
		profile.Purpose = string(classification)
		profile.Topic = ""
		profile.SenderType = ""
		profile.Confidence = 0
	}

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return "", fmt.Errorf("failed to persist sender profile: %w", err)
	}

	s.stats.Enqueue(isNewSender)
	metrics.EventsTotal.WithLabelValues(string(classification)).Inc()

	return classification, nil
}

// classify consults the remote classifier when one is configured and
// falls back to the local rules on any failure. Remote errors are logged
// and never surfaced to the caller.
func (s *TriageService) classify(ctx context.Context, event *Event) (Category, *RemoteResult) {
	if s.remote != nil {
		result, err := s.remote.Classify(ctx, event)
		if err == nil {
			s.logger.Debug("Remote classification",
				zap.String("sender", event.Sender),
				zap.String("purpose", string(result.Purpose)),
				zap.Float64("confidence", result.Confidence))
			return result.Purpose, result
		}
		metrics.RemoteFailuresTotal.Inc()
		s.logger.Warn("Remote classifier failed, falling back to rules",
			zap.Error(err),
			zap.String("sender", event.Sender))
	}

	classification := s.rules.Classify(event)
	s.logger.Debug("Rule-based classification",
		zap.String("sender", event.Sender),
		zap.String("classification", string(classification)))
	return classification, nil
}

// PerformAction records a user action against a sender. The downstream
// effect of the action is delegated to the front end; only the profile
// is updated here.
func (s *TriageService) PerformAction(ctx context.Context, email string, action Action) error {
	if action != ActionUnsubscribe && action != ActionDelete {
		return fmt.Errorf("unsupported action: %s", action)
	}

	unlock, err := s.locks.Lock(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to acquire sender lock: %w", err)
	}
	defer unlock()

	profile, err := s.profiles.GetOrDefault(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to fetch sender profile: %w", err)
	}

	profile.LastAction = action
	if action == ActionUnsubscribe {
		profile.Unsubscribed = true
	}

	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return fmt.Errorf("failed to persist sender profile: %w", err)
	}

	metrics.ActionsTotal.WithLabelValues(string(action)).Inc()
	s.logger.Info("Recorded sender action",
		zap.String("email", email),
		zap.String("action", string(action)))
	return nil
}

// SetOverride pins a sender to a fixed classification, bypassing the
// remote and rule classifiers for subsequent events.
func (s *TriageService) SetOverride(ctx context.Context, email string, category Category) error {
	unlock, err := s.locks.Lock(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to acquire sender lock: %w", err)
	}
	defer unlock()

	profile, err := s.profiles.GetOrDefault(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to fetch sender profile: %w", err)
	}

	profile.UserOverride = category
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return fmt.Errorf("failed to persist sender profile: %w", err)
	}
	return nil
}

// GetOverride returns the sender's manual override, if any.
func (s *TriageService) GetOverride(ctx context.Context, email string) (Category, bool, error) {
	unlock, err := s.locks.Lock(ctx, email)
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire sender lock: %w", err)
	}
	defer unlock()

	profile, err := s.profiles.GetOrDefault(ctx, email)
	if err != nil {
		return "", false, fmt.Errorf("failed to fetch sender profile: %w", err)
	}
	return profile.UserOverride, profile.UserOverride != "", nil
}

// RecentSenders returns up to limit profiles ordered by descending
// LastInteraction. A non-positive limit selects the default of 10.
func (s *TriageService) RecentSenders(ctx context.Context, limit int) ([]*SenderProfile, error) {
	if limit <= 0 {
		limit = 10
	}
	profiles, err := s.profiles.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent senders: %w", err)
	}
	return profiles, nil
}

// Stats returns the current stats snapshot.
func (s *TriageService) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}
