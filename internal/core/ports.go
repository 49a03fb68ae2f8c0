package core

import (
	"context"
)

// RemoteClassifier defines the interface for the external classification service
type RemoteClassifier interface {
	// Classify sends one detection event to the remote service and parses
	// the response. Any failure (network, timeout, malformed or unusable
	// response) is reported as an error; callers fall back to local rules.
	Classify(ctx context.Context, event *Event) (*RemoteResult, error)
}

// ProfileRepository defines the interface for the durable sender profile store
type ProfileRepository interface {
	// GetOrDefault returns the stored profile for an address, or a freshly
	// materialized default profile when none exists. A miss is never an error.
	GetOrDefault(ctx context.Context, email string) (*SenderProfile, error)

	// Upsert replaces the stored profile wholesale, keyed by Email.
	Upsert(ctx context.Context, profile *SenderProfile) error

	// ListRecent returns up to limit profiles ordered by descending
	// LastInteraction, ties broken by insertion order.
	ListRecent(ctx context.Context, limit int) ([]*SenderProfile, error)

	// Exists reports whether a profile has actually been stored for the
	// address, distinguishing a real record from the implicit default.
	Exists(ctx context.Context, email string) (bool, error)
}

// StatsRepository persists the process-wide stats snapshot
type StatsRepository interface {
	Load(ctx context.Context) (StatsSnapshot, error)
	Save(ctx context.Context, snap StatsSnapshot) error
}

// StatsNotifier receives a notification after every successful stats update
type StatsNotifier interface {
	NotifyStats(snap StatsSnapshot)
}
