package store

import (
	"context"
	"testing"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStore_DefaultMaterialization(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	p, err := s.GetOrDefault(ctx, "unseen@example.com")
	require.NoError(t, err)
	assert.Equal(t, "unseen@example.com", p.Email)
	assert.Equal(t, "example.com", p.Domain)
	assert.Zero(t, p.TotalReceived)
	assert.Zero(t, p.Opened)
	assert.Zero(t, p.Deleted)
	assert.Empty(t, p.Classification)
	assert.Empty(t, p.UserOverride)
	assert.Zero(t, p.Confidence)

	// A miss never creates a record.
	exists, err := s.Exists(ctx, "unseen@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	p := &core.SenderProfile{
		Email:           "a@b.com",
		Domain:          "b.com",
		TotalReceived:   4,
		LastInteraction: time.Unix(0, 1700000000000000000),
		Classification:  core.CategorySubscription,
		Purpose:         "Subscription",
		Topic:           "news",
		SenderType:      "newsletter",
		Confidence:      0.5,
		UserOverride:    core.CategoryWork,
		LastAction:      core.ActionUnsubscribe,
		Unsubscribed:    true,
	}
	require.NoError(t, s.Upsert(ctx, p))

	got, err := s.GetOrDefault(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	// Upserting the same value twice is idempotent.
	require.NoError(t, s.Upsert(ctx, p))
	again, err := s.GetOrDefault(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, got, again)

	exists, err := s.Exists(ctx, "a@b.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemoryStore_NoAliasing(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	p := &core.SenderProfile{Email: "a@b.com", TotalReceived: 1}
	require.NoError(t, s.Upsert(ctx, p))

	// Mutating the caller's copy must not affect the stored record.
	p.TotalReceived = 99
	got, err := s.GetOrDefault(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TotalReceived)

	// Neither must mutating a fetched record.
	got.TotalReceived = 50
	again, err := s.GetOrDefault(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.TotalReceived)
}

func TestMemoryStore_ListRecentOrdering(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	base := time.Unix(0, 1700000000000000000)
	profiles := []*core.SenderProfile{
		{Email: "old@a.com", LastInteraction: base.Add(-2 * time.Hour)},
		{Email: "tie1@a.com", LastInteraction: base},
		{Email: "tie2@a.com", LastInteraction: base},
		{Email: "newest@a.com", LastInteraction: base.Add(time.Hour)},
	}
	for _, p := range profiles {
		require.NoError(t, s.Upsert(ctx, p))
	}

	got, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "newest@a.com", got[0].Email)
	// Ties resolve by insertion order.
	assert.Equal(t, "tie1@a.com", got[1].Email)
	assert.Equal(t, "tie2@a.com", got[2].Email)
	assert.Equal(t, "old@a.com", got[3].Email)

	// Rewriting tie1 must not change its position in the tie.
	require.NoError(t, s.Upsert(ctx, profiles[1]))
	got, err = s.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "tie1@a.com", got[1].Email)

	// Limit truncates.
	got, err = s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "newest@a.com", got[0].Email)
	assert.Equal(t, "tie1@a.com", got[1].Email)
}

func TestMemoryStatsStore_RoundTrip(t *testing.T) {
	s := NewMemoryStatsStore()
	ctx := context.Background()

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.StatsSnapshot{}, snap)

	require.NoError(t, s.Save(ctx, core.StatsSnapshot{EmailsAnalyzed: 5, SendersGrouped: 2}))
	snap, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.StatsSnapshot{EmailsAnalyzed: 5, SendersGrouped: 2}, snap)
}
