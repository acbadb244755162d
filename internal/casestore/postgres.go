package casestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists review cases in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS review_cases (
			id TEXT PRIMARY KEY,
			subject TEXT NOT NULL,
			role_name TEXT NOT NULL,
			llm_model TEXT NOT NULL,
			voice_id TEXT NOT NULL DEFAULT '',
			tts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_review_cases_created ON review_cases (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveCase(ctx context.Context, record CaseRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO review_cases (id, subject, role_name, llm_model, voice_id, tts_enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID,
		record.Subject,
		record.RoleName,
		record.LLMModel,
		record.VoiceID,
		record.TTSEnabled,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save case: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentCases(ctx context.Context, limit int) ([]CaseRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, subject, role_name, llm_model, voice_id, tts_enabled, created_at
		 FROM review_cases ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent cases: %w", err)
	}
	defer rows.Close()

	items := make([]CaseRecord, 0, limit)
	for rows.Next() {
		var r CaseRecord
		if err := rows.Scan(&r.ID, &r.Subject, &r.RoleName, &r.LLMModel, &r.VoiceID, &r.TTSEnabled, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan case row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case rows: %w", err)
	}

	// Reverse into chronological order for display.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
