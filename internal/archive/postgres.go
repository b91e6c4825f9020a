// Package archive stores finished sessions.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"careerlens/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS career_sessions (
	id             TEXT PRIMARY KEY,
	mode           TEXT NOT NULL,
	config         JSONB NOT NULL,
	transcript     JSONB NOT NULL,
	feedback       JSONB NOT NULL,
	exchange_count INTEGER NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	ended_at       TIMESTAMPTZ NOT NULL,
	end_reason     TEXT NOT NULL
)`

const upsertSession = `
INSERT INTO career_sessions
	(id, mode, config, transcript, feedback, exchange_count, started_at, ended_at, end_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	transcript     = EXCLUDED.transcript,
	feedback       = EXCLUDED.feedback,
	exchange_count = EXCLUDED.exchange_count,
	ended_at       = EXCLUDED.ended_at,
	end_reason     = EXCLUDED.end_reason`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres archives sessions as one row each, with JSONB payloads.
type Postgres struct {
	db execer
}

func NewPostgres(db execer) *Postgres {
	return &Postgres{db: db}
}

// ConnectPostgres opens a pool for dsn and makes sure the table exists.
func ConnectPostgres(ctx context.Context, dsn string) (*Postgres, func(), error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	p := NewPostgres(pool)
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return p, pool.Close, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create career_sessions: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, record domain.SessionRecord) error {
	config, err := json.Marshal(record.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	transcript, err := json.Marshal(nonNilTranscript(record.Transcript))
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	feedback, err := json.Marshal(nonNilFeedback(record.Feedback))
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}

	_, err = p.db.Exec(ctx, upsertSession,
		record.ID,
		string(record.Config.Mode),
		config,
		transcript,
		feedback,
		record.ExchangeCount,
		record.StartedAt,
		record.EndedAt,
		string(record.EndReason),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", record.ID, err)
	}
	return nil
}

func nonNilTranscript(items []domain.TranscriptItem) []domain.TranscriptItem {
	if items == nil {
		return []domain.TranscriptItem{}
	}
	return items
}

func nonNilFeedback(feedback map[int]domain.FeedbackReport) map[int]domain.FeedbackReport {
	if feedback == nil {
		return map[int]domain.FeedbackReport{}
	}
	return feedback
}
