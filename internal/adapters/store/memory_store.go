// Package store provides the durable sender profile and stats
// repositories backing the triage pipeline.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of the ProfileRepository
// interface. Profiles are copied on the way in and out so callers can
// never alias the stored record.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*memoryRecord
	seq      int64
	logger   *zap.Logger
}

// memoryRecord tags each profile with its insertion sequence, used to
// break LastInteraction ties deterministically in ListRecent.
type memoryRecord struct {
	profile core.SenderProfile
	seq     int64
}

// NewMemoryStore creates a new in-memory profile store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*memoryRecord),
		logger:   logger,
	}
}

// GetOrDefault returns the stored profile, or a materialized default on miss.
func (s *MemoryStore) GetOrDefault(ctx context.Context, email string) (*core.SenderProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.profiles[email]
	if !ok {
		return core.NewDefaultProfile(email), nil
	}
	profile := rec.profile
	return &profile, nil
}

// Upsert replaces the stored profile wholesale.
func (s *MemoryStore) Upsert(ctx context.Context, profile *core.SenderProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.profiles[profile.Email]; ok {
		rec.profile = *profile
		return nil
	}
	s.seq++
	s.profiles[profile.Email] = &memoryRecord{profile: *profile, seq: s.seq}
	return nil
}

// ListRecent returns up to limit profiles by descending LastInteraction,
// ties broken by insertion order.
func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*core.SenderProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*memoryRecord, 0, len(s.profiles))
	for _, rec := range s.profiles {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.profile.LastInteraction.Equal(b.profile.LastInteraction) {
			return a.profile.LastInteraction.After(b.profile.LastInteraction)
		}
		return a.seq < b.seq
	})

	if limit < len(records) {
		records = records[:limit]
	}
	profiles := make([]*core.SenderProfile, len(records))
	for i, rec := range records {
		profile := rec.profile
		profiles[i] = &profile
	}
	return profiles, nil
}

// Exists reports whether a profile has actually been stored.
func (s *MemoryStore) Exists(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.profiles[email]
	return ok, nil
}

// MemoryStatsStore is an in-memory implementation of the StatsRepository
// interface, used when no durable store is configured.
type MemoryStatsStore struct {
	mu   sync.Mutex
	snap core.StatsSnapshot
}

// NewMemoryStatsStore creates an empty in-memory stats store.
func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{}
}

// Load returns the last saved snapshot, zero-valued initially.
func (s *MemoryStatsStore) Load(ctx context.Context) (core.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

// Save stores the snapshot.
func (s *MemoryStatsStore) Save(ctx context.Context, snap core.StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return nil
}
