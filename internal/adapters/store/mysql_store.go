package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// MySQLStore is a MySQL implementation of the ProfileRepository and
// StatsRepository interfaces, for deployments that already run MySQL.
// The auto-increment seq column breaks LastInteraction ties by insertion
// order, matching the SQLite rowid behaviour.
type MySQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewMySQLStore connects to MySQL and creates the tables if needed.
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sender_profiles (
			email VARCHAR(255) PRIMARY KEY,
			seq BIGINT NOT NULL AUTO_INCREMENT UNIQUE,
			domain VARCHAR(255) NOT NULL DEFAULT '',
			total_received BIGINT NOT NULL DEFAULT 0,
			opened BIGINT NOT NULL DEFAULT 0,
			deleted BIGINT NOT NULL DEFAULT 0,
			last_interaction BIGINT NOT NULL DEFAULT 0,
			classification VARCHAR(32) NOT NULL DEFAULT '',
			purpose VARCHAR(64) NOT NULL DEFAULT '',
			topic VARCHAR(255) NOT NULL DEFAULT '',
			sender_type VARCHAR(64) NOT NULL DEFAULT '',
			confidence DOUBLE NOT NULL DEFAULT 0,
			user_override VARCHAR(32) NOT NULL DEFAULT '',
			last_action VARCHAR(32) NOT NULL DEFAULT '',
			unsubscribed BOOLEAN NOT NULL DEFAULT FALSE,
			INDEX idx_last_interaction (last_interaction)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sender_profiles table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS triage_stats (
			id TINYINT PRIMARY KEY,
			emails_analyzed BIGINT NOT NULL DEFAULT 0,
			senders_grouped BIGINT NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create triage_stats table: %w", err)
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

// GetOrDefault returns the stored profile, or a materialized default on miss.
func (s *MySQLStore) GetOrDefault(ctx context.Context, email string) (*core.SenderProfile, error) {
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

// Upsert replaces the stored profile wholesale, preserving seq.
func (s *MySQLStore) Upsert(ctx context.Context, profile *core.SenderProfile) error {
	row := fromProfile(profile)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sender_profiles (
			email, domain, total_received, opened, deleted, last_interaction,
			classification, purpose, topic, sender_type, confidence,
			user_override, last_action, unsubscribed
		) VALUES (
			:email, :domain, :total_received, :opened, :deleted, :last_interaction,
			:classification, :purpose, :topic, :sender_type, :confidence,
			:user_override, :last_action, :unsubscribed
		)
		ON DUPLICATE KEY UPDATE
			domain = VALUES(domain),
			total_received = VALUES(total_received),
			opened = VALUES(opened),
			deleted = VALUES(deleted),
			last_interaction = VALUES(last_interaction),
			classification = VALUES(classification),
			purpose = VALUES(purpose),
			topic = VALUES(topic),
			sender_type = VALUES(sender_type),
			confidence = VALUES(confidence),
			user_override = VALUES(user_override),
			last_action = VALUES(last_action),
			unsubscribed = VALUES(unsubscribed)`, row)
	if err != nil {
		return fmt.Errorf("failed to upsert sender profile: %w", err)
	}
	return nil
}

// ListRecent returns up to limit profiles by descending LastInteraction.
func (s *MySQLStore) ListRecent(ctx context.Context, limit int) ([]*core.SenderProfile, error) {
	var rows []dbProfile
	err := s.db.SelectContext(ctx, &rows, `
		SELECT email, domain, total_received, opened, deleted, last_interaction,
		       classification, purpose, topic, sender_type, confidence,
		       user_override, last_action, unsubscribed
		FROM sender_profiles
		ORDER BY last_interaction DESC, seq ASC
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
func (s *MySQLStore) Exists(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM sender_profiles WHERE email = ?`, email)
	if err != nil {
		return false, fmt.Errorf("failed to query sender profile: %w", err)
	}
	return n > 0, nil
}

// Load returns the persisted stats snapshot.
func (s *MySQLStore) Load(ctx context.Context) (core.StatsSnapshot, error) {
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
func (s *MySQLStore) Save(ctx context.Context, snap core.StatsSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO triage_stats (id, emails_analyzed, senders_grouped)
		VALUES (1, ?, ?)
		ON DUPLICATE KEY UPDATE
			emails_analyzed = VALUES(emails_analyzed),
			senders_grouped = VALUES(senders_grouped)`,
		snap.EmailsAnalyzed, snap.SendersGrouped)
	if err != nil {
		return fmt.Errorf("failed to save stats snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *MySQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close MySQL database: %w", err)
	}
	return nil
}
