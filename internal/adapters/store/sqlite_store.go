package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mikey/mail-triage/internal/core"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"
)

// migrations is the versioned schema history. Upgrades are strictly
// additive: new columns carry defaults so records written by an older
// schema read back with the new fields unset.
var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_sender_profiles",
			Up: []string{`
				CREATE TABLE sender_profiles (
					email TEXT PRIMARY KEY,
					domain TEXT NOT NULL DEFAULT '',
					total_received INTEGER NOT NULL DEFAULT 0,
					opened INTEGER NOT NULL DEFAULT 0,
					deleted INTEGER NOT NULL DEFAULT 0,
					last_interaction INTEGER NOT NULL DEFAULT 0,
					classification TEXT NOT NULL DEFAULT '',
					purpose TEXT NOT NULL DEFAULT '',
					topic TEXT NOT NULL DEFAULT '',
					sender_type TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_last_interaction ON sender_profiles(last_interaction)`,
				`CREATE TABLE triage_stats (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					emails_analyzed INTEGER NOT NULL DEFAULT 0,
					senders_grouped INTEGER NOT NULL DEFAULT 0
				)`,
			},
			Down: []string{
				`DROP TABLE triage_stats`,
				`DROP TABLE sender_profiles`,
			},
		},
		{
			Id: "2_overrides_and_actions",
			Up: []string{
				`ALTER TABLE sender_profiles ADD COLUMN user_override TEXT NOT NULL DEFAULT ''`,
				`ALTER TABLE sender_profiles ADD COLUMN last_action TEXT NOT NULL DEFAULT ''`,
				`ALTER TABLE sender_profiles ADD COLUMN unsubscribed INTEGER NOT NULL DEFAULT 0`,
			},
			Down: []string{
				`ALTER TABLE sender_profiles DROP COLUMN unsubscribed`,
				`ALTER TABLE sender_profiles DROP COLUMN last_action`,
				`ALTER TABLE sender_profiles DROP COLUMN user_override`,
			},
		},
	},
}

// dbProfile is the row shape of sender_profiles. Timestamps are stored
// as unix nanoseconds; 0 means "never".
type dbProfile struct {
	Email           string  `db:"email"`
	Domain          string  `db:"domain"`
	TotalReceived   int64   `db:"total_received"`
	Opened          int64   `db:"opened"`
	Deleted         int64   `db:"deleted"`
	LastInteraction int64   `db:"last_interaction"`
	Classification  string  `db:"classification"`
	Purpose         string  `db:"purpose"`
	Topic           string  `db:"topic"`
	SenderType      string  `db:"sender_type"`
	Confidence      float64 `db:"confidence"`
	UserOverride    string  `db:"user_override"`
	LastAction      string  `db:"last_action"`
	Unsubscribed    bool    `db:"unsubscribed"`
}

func (r *dbProfile) toProfile() *core.SenderProfile {
	p := &core.SenderProfile{
		Email:          r.Email,
		Domain:         r.Domain,
		TotalReceived:  r.TotalReceived,
		Opened:         r.Opened,
		Deleted:        r.Deleted,
		Classification: core.Category(r.Classification),
		Purpose:        r.Purpose,
		Topic:          r.Topic,
		SenderType:     r.SenderType,
		Confidence:     r.Confidence,
		UserOverride:   core.Category(r.UserOverride),
		LastAction:     core.Action(r.LastAction),
		Unsubscribed:   r.Unsubscribed,
	}
	if r.LastInteraction != 0 {
		p.LastInteraction = time.Unix(0, r.LastInteraction)
	}
	return p
}

func fromProfile(p *core.SenderProfile) *dbProfile {
	r := &dbProfile{
		Email:          p.Email,
		Domain:         p.Domain,
		TotalReceived:  p.TotalReceived,
		Opened:         p.Opened,
		Deleted:        p.Deleted,
		Classification: string(p.Classification),
		Purpose:        p.Purpose,
		Topic:          p.Topic,
		SenderType:     p.SenderType,
		Confidence:     p.Confidence,
		UserOverride:   string(p.UserOverride),
		LastAction:     string(p.LastAction),
		Unsubscribed:   p.Unsubscribed,
	}
	if !p.LastInteraction.IsZero() {
		r.LastInteraction = p.LastInteraction.UnixNano()
	}
	return r
}

const upsertProfileQuery = `
	INSERT INTO sender_profiles (
		email, domain, total_received, opened, deleted, last_interaction,
		classification, purpose, topic, sender_type, confidence,
		user_override, last_action, unsubscribed
	) VALUES (
		:email, :domain, :total_received, :opened, :deleted, :last_interaction,
		:classification, :purpose, :topic, :sender_type, :confidence,
		:user_override, :last_action, :unsubscribed
	)
	ON CONFLICT(email) DO UPDATE SET
		domain = excluded.domain,
		total_received = excluded.total_received,
		opened = excluded.opened,
		deleted = excluded.deleted,
		last_interaction = excluded.last_interaction,
		classification = excluded.classification,
		purpose = excluded.purpose,
		topic = excluded.topic,
		sender_type = excluded.sender_type,
		confidence = excluded.confidence,
		user_override = excluded.user_override,
		last_action = excluded.last_action,
		unsubscribed = excluded.unsubscribed`

// SQLiteStore is a SQLite implementation of the ProfileRepository and
// StatsRepository interfaces. The rowid assigned on first insert is the
// deterministic tie-breaker for ListRecent; the conflict-update form of
// Upsert keeps it stable across rewrites.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database and migrates it to the
// newest schema version.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	applied, err := migrate.Exec(db.DB, "sqlite3", migrations, migrate.Up)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	logger.Debug("Opened profile store",
		zap.String("path", dbPath),
		zap.Int("applied_migrations", applied))

	return &SQLiteStore{db: db, logger: logger}, nil
}

// GetOrDefault returns the stored profile, or a materialized default on miss.
func (s *SQLiteStore) GetOrDefault(ctx context.Context, email string) (*core.SenderProfile, error) {
	var row dbProfile
	err := s.db.GetContext(ctx, &row, `
		SELECT email, domain, total_received, opened, deleted, last_interaction,
		       classification, purpose, topic, sender_type, confidence,
		       user_override, last_action, unsubscribed
		FROM sender_profiles WHERE email = ?`, email)
	if err == sql.ErrNoRows {
		return core.NewDefaultProfile(email), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sender profile: %w", err)
	}
	return row.toProfile(), nil
}

// Upsert replaces the stored profile wholesale.
func (s *SQLiteStore) Upsert(ctx context.Context, profile *core.SenderProfile) error {
	if _, err := s.db.NamedExecContext(ctx, upsertProfileQuery, fromProfile(profile)); err != nil {
		return fmt.Errorf("failed to upsert sender profile: %w", err)
	}
	return nil
}

// ListRecent returns up to limit profiles by descending LastInteraction.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*core.SenderProfile, error) {
	var rows []dbProfile
	err := s.db.SelectContext(ctx, &rows, `
		SELECT email, domain, total_received, opened, deleted, last_interaction,
		       classification, purpose, topic, sender_type, confidence,
		       user_override, last_action, unsubscribed
		FROM sender_profiles
		ORDER BY last_interaction DESC, rowid ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sender profiles: %w", err)
	}

	profiles := make([]*core.SenderProfile, len(rows))
	for i := range rows {
		profiles[i] = rows[i].toProfile()
	}
	return profiles, nil
}

// Exists reports whether a profile has actually been stored.
func (s *SQLiteStore) Exists(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM sender_profiles WHERE email = ?`, email)
	if err != nil {
		return false, fmt.Errorf("failed to query sender profile: %w", err)
	}
	return n > 0, nil
}

// Load returns the persisted stats snapshot, zero-valued when the row
// has never been written.
func (s *SQLiteStore) Load(ctx context.Context) (core.StatsSnapshot, error) {
	var snap core.StatsSnapshot
	err := s.db.QueryRowxContext(ctx,
		`SELECT emails_analyzed, senders_grouped FROM triage_stats WHERE id = 1`,
	).Scan(&snap.EmailsAnalyzed, &snap.SendersGrouped)
	if err == sql.ErrNoRows {
		return core.StatsSnapshot{}, nil
	}
	if err != nil {
		return core.StatsSnapshot{}, fmt.Errorf("failed to load stats snapshot: %w", err)
	}
	return snap, nil
}

// Save persists the stats snapshot.
func (s *SQLiteStore) Save(ctx context.Context, snap core.StatsSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO triage_stats (id, emails_analyzed, senders_grouped)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			emails_analyzed = excluded.emails_analyzed,
			senders_grouped = excluded.senders_grouped`,
		snap.EmailsAnalyzed, snap.SendersGrouped)
	if err != nil {
		return fmt.Errorf("failed to save stats snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close SQLite database: %w", err)
	}
	return nil
}
